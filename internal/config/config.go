// Package config handles configuration loading and management for Trellis.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Provider kinds understood by the gateway.
const (
	KindAnthropic = "anthropic"
	KindOpenAI    = "openai"
	KindOllama    = "ollama"
)

// Busy behaviors for concurrent input on the same session.
const (
	BusyWait = "wait"
	BusyFail = "fail"
)

// Config holds all configuration for Trellis.
type Config struct {
	DefaultProvider string           `mapstructure:"default_provider"`
	Providers       []ProviderConfig `mapstructure:"providers"`
	Engine          EngineConfig     `mapstructure:"engine"`
	Store           StoreConfig      `mapstructure:"store"`
	Memory          MemoryConfig     `mapstructure:"memory"`
}

// ProviderConfig holds settings for a single LLM provider backend.
type ProviderConfig struct {
	// Name is the routing name agents use to reach this provider.
	Name string `mapstructure:"name"`
	// Kind selects the backend implementation (anthropic, openai, ollama).
	Kind string `mapstructure:"kind"`
	// Endpoint overrides the backend's default base URL.
	Endpoint string `mapstructure:"endpoint"`
	// Model is the model identifier passed to the backend.
	Model string `mapstructure:"model"`
	// APIKey may contain ${VAR} references, expanded at load time.
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retry   RetryConfig   `mapstructure:"retry"`
	// UseAWSBedrock routes anthropic calls through AWS Bedrock.
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// RetryConfig holds retry and backoff settings for a provider.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// EngineConfig holds pipeline coordinator settings.
type EngineConfig struct {
	// MaxClarifications bounds the questions asked per session before
	// planning is forced.
	MaxClarifications int `mapstructure:"max_clarifications"`
	// BusyBehavior is what Step does when a session is already being
	// stepped: "wait" or "fail".
	BusyBehavior string        `mapstructure:"busy_behavior"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
	// PlanningAgents is the invocation order for the planning phase.
	PlanningAgents []string `mapstructure:"planning_agents"`
	// SchedulerAgent is the agent used for sprint packaging. Empty
	// disables scheduling and wraps the plan in a single sprint.
	SchedulerAgent string `mapstructure:"scheduler_agent"`
}

// StoreConfig holds session persistence settings.
type StoreConfig struct {
	// Backend selects the session store: "memory" or "sqlite".
	Backend string `mapstructure:"backend"`
	// Path is the sqlite database file. Ignored for the memory backend.
	Path string `mapstructure:"path"`
}

// MemoryConfig holds conversation memory (vector recall) settings.
type MemoryConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Path is the on-disk index location. Empty keeps the index in memory.
	Path string `mapstructure:"path"`
	// Results is how many past conversations to recall per query.
	Results int `mapstructure:"results"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (TRELLIS_*)
// 2. Project config (.trellis.yaml in current directory or parent)
// 3. User config (~/.config/trellis/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("TRELLIS")
	v.AutomaticEnv()
	v.BindEnv("default_provider", "TRELLIS_DEFAULT_PROVIDER")
	v.BindEnv("store.backend", "TRELLIS_STORE_BACKEND")
	v.BindEnv("store.path", "TRELLIS_STORE_PATH")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandSecrets(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandSecrets(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Watch re-reads the config file whenever it changes on disk and calls
// onChange with the fresh configuration. Changes that fail validation
// are reported through onError and the previous config stays in effect.
func Watch(path string, onChange func(*Config), onError func(error)) error {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config from %s: %w", path, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg := &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			onError(fmt.Errorf("reloading %s: %w", e.Name, err))
			return
		}
		expandSecrets(cfg)
		if err := cfg.Validate(); err != nil {
			onError(fmt.Errorf("reloading %s: %w", e.Name, err))
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("config: no providers defined")
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("config: provider %d has no name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("config: duplicate provider %q", p.Name)
		}
		seen[p.Name] = true

		switch p.Kind {
		case KindAnthropic, KindOpenAI, KindOllama:
		default:
			return fmt.Errorf("config: provider %q has unknown kind %q", p.Name, p.Kind)
		}
		if p.Model == "" {
			return fmt.Errorf("config: provider %q has no model", p.Name)
		}
		if p.Retry.Multiplier != 0 && p.Retry.Multiplier < 1 {
			return fmt.Errorf("config: provider %q retry multiplier must be >= 1", p.Name)
		}
	}

	if c.DefaultProvider != "" && !seen[c.DefaultProvider] {
		return fmt.Errorf("config: default provider %q is not defined", c.DefaultProvider)
	}

	switch c.Engine.BusyBehavior {
	case BusyWait, BusyFail:
	default:
		return fmt.Errorf("config: busy_behavior must be %q or %q, got %q",
			BusyWait, BusyFail, c.Engine.BusyBehavior)
	}
	if c.Engine.MaxClarifications < 0 {
		return fmt.Errorf("config: max_clarifications must not be negative")
	}

	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("config: sqlite store requires a path")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}

	return nil
}

// Provider returns the provider config with the given name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("default_provider", "")

	v.SetDefault("engine.max_clarifications", 3)
	v.SetDefault("engine.busy_behavior", BusyFail)
	v.SetDefault("engine.session_ttl", "1h")
	v.SetDefault("engine.planning_agents", []string{"planner", "prioritizer", "estimator"})
	v.SetDefault("engine.scheduler_agent", "scheduler")

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.path", "")

	v.SetDefault("memory.enabled", false)
	v.SetDefault("memory.path", "")
	v.SetDefault("memory.results", 3)
}

// Default returns a Config with default values and a single local
// ollama provider, usable without any config file.
func Default() *Config {
	return &Config{
		DefaultProvider: "local",
		Providers: []ProviderConfig{
			{
				Name:    "local",
				Kind:    KindOllama,
				Model:   "llama3",
				Timeout: 2 * time.Minute,
			},
		},
		Engine: EngineConfig{
			MaxClarifications: 3,
			BusyBehavior:      BusyFail,
			SessionTTL:        time.Hour,
			PlanningAgents:    []string{"planner", "prioritizer", "estimator"},
			SchedulerAgent:    "scheduler",
		},
		Store: StoreConfig{
			Backend: "memory",
		},
		Memory: MemoryConfig{
			Enabled: false,
			Results: 3,
		},
	}
}

// getUserConfigDir returns the XDG config directory for Trellis.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "trellis")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "trellis")
	}
	return filepath.Join(home, ".config", "trellis")
}

// findProjectConfig searches for .trellis.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".trellis.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandSecrets expands ${VAR} references in provider API keys.
func expandSecrets(cfg *Config) {
	for i := range cfg.Providers {
		cfg.Providers[i].APIKey = os.ExpandEnv(cfg.Providers[i].APIKey)
	}
}
