package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/trellishq/trellis/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Print the merged configuration as YAML.

Configuration is stored at ~/.config/trellis/config.yaml
Project-specific overrides can be placed in .trellis.yaml
API keys are masked.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		for i := range cfg.Providers {
			if cfg.Providers[i].APIKey != "" {
				cfg.Providers[i].APIKey = "****"
			}
		}

		out, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error rendering config: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("# user config: %s\n", config.GetUserConfigPath())
		if project := config.GetProjectConfigPath(); project != "" {
			fmt.Printf("# project overrides: %s\n", project)
		}
		fmt.Print(string(out))
	},
}
