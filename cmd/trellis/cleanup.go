package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trellishq/trellis/internal/config"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired planning sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		store, err := buildStore(cfg)
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		defer store.Close()

		purged, err := store.PurgeExpired(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d expired sessions\n", purged)
		return nil
	},
}
