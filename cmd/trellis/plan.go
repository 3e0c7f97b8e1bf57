package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/trellishq/trellis/internal/config"
	"github.com/trellishq/trellis/internal/memory"
	"github.com/trellishq/trellis/internal/orchestrator"
	"github.com/trellishq/trellis/pkg/models"
)

var planSession string

var planCmd = &cobra.Command{
	Use:   "plan [goal]",
	Short: "Plan a project goal into sprints",
	Long: `Start or resume a planning conversation.

The goal can be passed as arguments or typed interactively. The
assistant may ask clarifying questions before producing the plan.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planSession, "session", "", "Resume an existing planning session by ID")
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := cmd.Context()
	coordinator, index, cleanup, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	// Reloads cannot rewire a running engine, so just surface them.
	config.Watch(config.GetUserConfigPath(), func(*config.Config) {
		color.New(color.Faint).Println("config changed on disk; restart to apply")
	}, func(error) {})

	sessionID := planSession
	input := strings.Join(args, " ")
	reader := bufio.NewScanner(os.Stdin)
	fresh := sessionID == ""

	for {
		if input == "" {
			if sessionID == "" {
				fmt.Print("Describe your project goal:\n> ")
			} else {
				fmt.Print("> ")
			}
			if !reader.Scan() {
				return reader.Err()
			}
			input = strings.TrimSpace(reader.Text())
			if input == "" {
				continue
			}
		}

		if fresh && index != nil {
			printRecalls(ctx, index, input, cfg.Memory.Results)
		}
		fresh = false

		snap, err := coordinator.Step(ctx, sessionID, input)
		if err != nil {
			if orchestrator.IsKind(err, orchestrator.KindSessionNotFound) {
				return fmt.Errorf("no session %q to resume", sessionID)
			}
			return err
		}
		sessionID = snap.SessionID
		input = ""

		switch snap.Status {
		case orchestrator.StatusNeedsClarification:
			color.Yellow("? %s", snap.Question.Text)
		case orchestrator.StatusComplete:
			printPlan(snap.Plan)
			color.New(color.Faint).Printf("session %s\n", sessionID)
			return nil
		case orchestrator.StatusFailed:
			color.Red("planning failed: %s", snap.Error)
			return fmt.Errorf("session %s failed", sessionID)
		default:
			color.New(color.Faint).Printf("session %s: %s\n", sessionID, snap.Status)
		}
	}
}

// printRecalls shows past plans similar to the new goal.
func printRecalls(ctx context.Context, index *memory.Index, goal string, n int) {
	recalls, err := index.Relevant(ctx, goal, n)
	if err != nil || len(recalls) == 0 {
		return
	}
	faint := color.New(color.Faint)
	faint.Println("Similar past plans:")
	for _, r := range recalls {
		faint.Printf("  - %s (session %s)\n", r.Goal, r.SessionID)
	}
}

// printPlan renders the final plan sprint by sprint.
func printPlan(plan *models.Plan) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)

	green.Printf("\nPlan ready: %d tasks across %d sprints\n\n", plan.TaskCount(), len(plan.Sprints))
	for _, sprint := range plan.Sprints {
		bold.Printf("%s  (%s to %s)\n", sprint.Name,
			sprint.StartDate.Format("2006-01-02"), sprint.EndDate.Format("2006-01-02"))
		for _, task := range sprint.Tasks {
			fmt.Printf("  [%s] %-40s %5.1fh\n", task.Priority, task.Title, task.EstimateHours)
			if task.Detail != "" {
				color.New(color.Faint).Printf("        %s\n", task.Detail)
			}
		}
		fmt.Println()
	}
}
