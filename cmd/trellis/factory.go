package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"github.com/trellishq/trellis/internal/agent"
	"github.com/trellishq/trellis/internal/config"
	"github.com/trellishq/trellis/internal/memory"
	"github.com/trellishq/trellis/internal/orchestrator"
	"github.com/trellishq/trellis/internal/provider"
	"github.com/trellishq/trellis/internal/state"
)

// buildGateway constructs the provider registry and gateway from config.
func buildGateway(ctx context.Context, cfg *config.Config) (*provider.Gateway, error) {
	registry := provider.NewRegistry()

	for _, pc := range cfg.Providers {
		var backend provider.Backend
		var err error

		switch pc.Kind {
		case config.KindAnthropic:
			backend, err = provider.NewAnthropicBackend(ctx, provider.AnthropicOptions{
				APIKey:        pc.APIKey,
				BaseURL:       pc.Endpoint,
				Model:         pc.Model,
				UseAWSBedrock: pc.UseAWSBedrock,
				AWSRegion:     pc.AWSRegion,
				AWSProfile:    pc.AWSProfile,
			})
		case config.KindOpenAI:
			backend, err = provider.NewOpenAIBackend(provider.OpenAIOptions{
				APIKey:  pc.APIKey,
				BaseURL: pc.Endpoint,
				Model:   pc.Model,
			})
		case config.KindOllama:
			backend, err = provider.NewOllamaBackend(provider.OllamaOptions{
				ServerURL: pc.Endpoint,
				Model:     pc.Model,
			})
		default:
			err = fmt.Errorf("unknown kind %q", pc.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}

		err = registry.Register(provider.Config{
			Name:     pc.Name,
			Endpoint: pc.Endpoint,
			Model:    pc.Model,
			Timeout:  pc.Timeout,
			Retry: provider.RetryPolicy{
				MaxAttempts: pc.Retry.MaxAttempts,
				BaseDelay:   pc.Retry.BaseDelay,
				MaxDelay:    pc.Retry.MaxDelay,
				Multiplier:  pc.Retry.Multiplier,
			},
		}, backend)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}
	}

	return provider.NewGateway(registry), nil
}

// ollamaEmbeddingModel is the local model used to embed conversation
// summaries. Chat models are a poor fit for embeddings, so this is not
// taken from the provider config.
const ollamaEmbeddingModel = "nomic-embed-text"

// buildEmbedding picks an embedding source for conversation memory from
// the configured providers. Anthropic has no embeddings API, so memory
// needs an openai or ollama provider, or OPENAI_API_KEY as a fallback.
func buildEmbedding(cfg *config.Config) (chromem.EmbeddingFunc, error) {
	for _, pc := range cfg.Providers {
		switch pc.Kind {
		case config.KindOpenAI:
			key := pc.APIKey
			if key == "" {
				key = os.Getenv("OPENAI_API_KEY")
			}
			if key != "" {
				return chromem.NewEmbeddingFuncOpenAI(key, chromem.EmbeddingModelOpenAI3Small), nil
			}
		case config.KindOllama:
			base := ""
			if pc.Endpoint != "" {
				base = strings.TrimRight(pc.Endpoint, "/") + "/api"
			}
			return chromem.NewEmbeddingFuncOllama(ollamaEmbeddingModel, base), nil
		}
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return chromem.NewEmbeddingFuncDefault(), nil
	}
	return nil, fmt.Errorf("no embedding source: configure an openai or ollama provider, or set OPENAI_API_KEY")
}

// buildStore constructs the configured session store.
func buildStore(cfg *config.Config) (state.Store, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		return state.Open(cfg.Store.Path)
	default:
		return state.NewMemoryStore(), nil
	}
}

// buildEngine wires gateway, agents, store and memory into a
// coordinator. The returned index is nil when conversation memory is
// disabled. The returned cleanup closes everything the engine opened.
func buildEngine(ctx context.Context, cfg *config.Config) (*orchestrator.Coordinator, *memory.Index, func(), error) {
	gateway, err := buildGateway(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	routed := cfg.DefaultProvider
	if routed == "" {
		routed = cfg.Providers[0].Name
	}

	agents := agent.NewRegistry()
	for _, a := range []agent.Agent{
		agent.NewPlanner(gateway, routed),
		agent.NewPrioritizer(gateway, routed),
		agent.NewEstimator(gateway, routed),
		agent.NewScheduler(gateway, routed),
	} {
		if err := agents.Register(a); err != nil {
			return nil, nil, nil, err
		}
	}

	store, err := buildStore(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open session store: %w", err)
	}

	var index *memory.Index
	var archiver orchestrator.Archiver
	if cfg.Memory.Enabled {
		embed, err := buildEmbedding(cfg)
		if err != nil {
			store.Close()
			return nil, nil, nil, fmt.Errorf("conversation memory: %w", err)
		}
		index, err = memory.NewIndex(cfg.Memory.Path, embed)
		if err != nil {
			store.Close()
			return nil, nil, nil, fmt.Errorf("open conversation memory: %w", err)
		}
		archiver = index
	}

	logger, err := orchestrator.NewDebugLogger(filepath.Join(".trellis", "logs", "engine.log"))
	if err != nil {
		logger = orchestrator.NopLogger()
	}

	machine := orchestrator.NewMachine(agents, orchestrator.MachineConfig{
		PlanningAgents:    cfg.Engine.PlanningAgents,
		SchedulerAgent:    cfg.Engine.SchedulerAgent,
		MaxClarifications: cfg.Engine.MaxClarifications,
		Logger:            logger,
	})

	coordinator := orchestrator.NewCoordinator(machine, store, orchestrator.CoordinatorConfig{
		SessionTTL:   cfg.Engine.SessionTTL,
		WaitWhenBusy: cfg.Engine.BusyBehavior == config.BusyWait,
		Memory:       archiver,
		Logger:       logger,
	})

	cleanup := func() {
		store.Close()
		logger.Close()
	}
	return coordinator, index, cleanup, nil
}
