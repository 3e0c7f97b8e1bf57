// Package models defines the shared data types for Trellis planning
// sessions: tasks, sprints, plans, and conversation state.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Priority represents task priority, from P0 (critical) to P3 (low).
type Priority string

const (
	// PriorityCritical is work that blocks everything else.
	PriorityCritical Priority = "P0"
	// PriorityHigh is work that should land in the first sprint.
	PriorityHigh Priority = "P1"
	// PriorityMedium is standard-importance work.
	PriorityMedium Priority = "P2"
	// PriorityLow is nice-to-have work.
	PriorityLow Priority = "P3"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Task represents a unit of work within a plan.
type Task struct {
	// ID is the unique identifier for this task within its plan.
	ID string `json:"id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Detail provides expanded information about the task.
	Detail string `json:"detail,omitempty"`
	// Priority is the task priority (P0-P3).
	Priority Priority `json:"priority"`
	// EstimateHours is the estimated effort in hours. Must be positive.
	EstimateHours float64 `json:"estimate_hours"`
	// Done indicates whether the task has been completed.
	Done bool `json:"done"`
}

// Validate checks that the task satisfies the plan schema.
func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("task %q: title is empty", t.ID)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("task %q: invalid priority %q", t.ID, t.Priority)
	}
	if t.EstimateHours <= 0 {
		return fmt.Errorf("task %q: estimate must be positive, got %v", t.ID, t.EstimateHours)
	}
	return nil
}

// Sprint is a time-boxed ordered group of tasks.
type Sprint struct {
	// Name is the sprint label (e.g. "Sprint 1").
	Name string `json:"name"`
	// StartDate is the first day of the sprint.
	StartDate time.Time `json:"start_date"`
	// EndDate is the last day of the sprint. Must not precede StartDate.
	EndDate time.Time `json:"end_date"`
	// Tasks is the ordered task sequence for this sprint.
	Tasks []Task `json:"tasks"`
}

// Validate checks the sprint's date range and every contained task.
func (s Sprint) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("sprint: name is empty")
	}
	if s.EndDate.Before(s.StartDate) {
		return fmt.Errorf("sprint %q: end date %s precedes start date %s",
			s.Name, s.EndDate.Format("2006-01-02"), s.StartDate.Format("2006-01-02"))
	}
	for _, t := range s.Tasks {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("sprint %q: %w", s.Name, err)
		}
	}
	return nil
}

// Plan is the terminal output of a planning session: an ordered
// sequence of sprints. A plan is immutable once its session completes.
type Plan struct {
	// Sprints is the ordered sprint sequence.
	Sprints []Sprint `json:"sprints"`
}

// Validate checks every sprint and verifies task IDs are unique
// across the whole plan.
func (p Plan) Validate() error {
	seen := make(map[string]bool)
	for _, s := range p.Sprints {
		if err := s.Validate(); err != nil {
			return err
		}
		for _, t := range s.Tasks {
			if seen[t.ID] {
				return fmt.Errorf("duplicate task id %q in plan", t.ID)
			}
			seen[t.ID] = true
		}
	}
	return nil
}

// TaskCount returns the total number of tasks across all sprints.
func (p Plan) TaskCount() int {
	n := 0
	for _, s := range p.Sprints {
		n += len(s.Tasks)
	}
	return n
}
