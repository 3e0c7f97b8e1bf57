package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trellis",
	Short: "Conversational sprint planning assistant",
	Long: `Trellis turns a project goal into a prioritized, estimated sprint plan
through a conversation with a pipeline of LLM agents.

With no arguments, launches an interactive planning session: describe
your goal, answer the assistant's clarifying questions, and receive a
sprint-by-sprint plan.

Core capabilities:
- Decomposes a goal into concrete tasks
- Asks clarifying questions when the goal is ambiguous
- Prioritizes (P0-P3) and estimates every task
- Packages tasks into time-boxed sprints
- Persists sessions so conversations survive restarts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan(cmd, args)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&planSession, "session", "", "Resume an existing planning session by ID")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
}
