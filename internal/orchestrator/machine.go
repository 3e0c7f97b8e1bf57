package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/trellishq/trellis/internal/agent"
	"github.com/trellishq/trellis/internal/provider"
	"github.com/trellishq/trellis/pkg/models"
)

// forcedAnswer is supplied for an unanswerable question once the
// clarification budget is spent, pushing the planner toward a task set.
const forcedAnswer = "No answer is available. Make a reasonable assumption and produce the task list."

// defaultSprintLength is the span of the single wrap-up sprint used
// when no scheduler agent is configured.
const defaultSprintLength = 13 * 24 * time.Hour

// MachineConfig holds the tunables of the conversation state machine.
type MachineConfig struct {
	// PlanningAgents is the invocation order for the planning phase.
	// The first agent may ask clarification questions.
	PlanningAgents []string
	// SchedulerAgent packages tasks into sprints. Empty wraps the task
	// set in a single default sprint instead.
	SchedulerAgent string
	// MaxClarifications bounds the completed question rounds per session.
	MaxClarifications int
	Logger            *DebugLogger
}

// Machine advances a single session through its conversation states.
// It mutates the session it is given and leaves persistence to the
// caller.
type Machine struct {
	agents *agent.Registry
	cfg    MachineConfig
	logger *DebugLogger

	// now is injectable for tests.
	now func() time.Time
}

// NewMachine creates a Machine over the given agent registry.
func NewMachine(agents *agent.Registry, cfg MachineConfig) *Machine {
	if len(cfg.PlanningAgents) == 0 {
		cfg.PlanningAgents = []string{agent.PlannerName}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = NopLogger()
	}
	return &Machine{agents: agents, cfg: cfg, logger: logger, now: time.Now}
}

// Step feeds one user input into the session and advances it as far as
// it can go without further input. Terminal sessions are left alone.
//
// On a committed failure (provider exhaustion, repeatedly malformed
// agent output) the session transitions to failed and the cause is
// returned. Other errors leave the session state unchanged so the same
// input can be retried.
func (m *Machine) Step(ctx context.Context, s *models.ConversationSession, input string) error {
	switch s.State {
	case models.StateAwaitingGoal:
		s.Goal = input
		m.logger.Log("[machine] session %s: goal recorded", s.ID)
		return m.advance(ctx, s)

	case models.StateClarifying:
		if s.PendingQuestion != nil {
			s.Clarifications = append(s.Clarifications, models.ClarificationExchange{
				Question: s.PendingQuestion.Text,
				Answer:   input,
			})
			s.ClarificationCount++
			s.PendingQuestion = nil
			m.logger.Log("[machine] session %s: clarification %d answered", s.ID, s.ClarificationCount)
		}
		return m.advance(ctx, s)

	case models.StatePlanning, models.StateScheduling:
		// A previous step failed transiently after this state was
		// persisted. Resume from here.
		return m.advance(ctx, s)

	case models.StateComplete, models.StateFailed:
		return nil

	default:
		return fmt.Errorf("session %s in invalid state %q", s.ID, s.State)
	}
}

// advance runs the planning agents in order, then schedules. It stops
// early when the planner needs another answer from the user.
func (m *Machine) advance(ctx context.Context, s *models.ConversationSession) error {
	view := agent.StateView{
		SessionID:      s.ID,
		Goal:           s.Goal,
		Clarifications: s.Clarifications,
		Tasks:          s.Tasks,
	}

	for i, name := range m.cfg.PlanningAgents {
		ag, ok := m.agents.Lookup(name)
		if !ok {
			return fmt.Errorf("planning agent %q not registered", name)
		}

		res, err := m.invoke(ctx, s, ag, view)
		if err != nil {
			return err
		}

		if res.NeedsClarification() {
			if i != 0 {
				return m.fail(s, &agent.AgentError{
					Agent:   name,
					Kind:    agent.KindMalformedOutput,
					Message: "only the first planning agent may ask questions",
				})
			}
			if s.ClarificationCount < m.cfg.MaxClarifications {
				s.State = models.StateClarifying
				s.PendingQuestion = res.Clarification
				m.logger.Log("[machine] session %s: asking %q", s.ID, res.Clarification.Text)
				return nil
			}

			// Budget spent. Force the planner past the question once.
			m.logger.Log("[machine] session %s: clarification budget spent, forcing plan", s.ID)
			view.Clarifications = append(view.Clarifications, models.ClarificationExchange{
				Question: res.Clarification.Text,
				Answer:   forcedAnswer,
			})
			res, err = m.invoke(ctx, s, ag, view)
			if err != nil {
				return err
			}
			if res.NeedsClarification() {
				return m.fail(s, &EngineError{
					SessionID: s.ID,
					Kind:      KindClarificationLimit,
					Message:   fmt.Sprintf("planner still asking after %d rounds", s.ClarificationCount),
				})
			}
		}

		s.State = models.StatePlanning
		if res.Tasks != nil {
			s.Tasks = res.Tasks
			view.Tasks = res.Tasks
		}
		m.logger.Log("[machine] session %s: %s done, %d tasks", s.ID, name, len(s.Tasks))
	}

	if len(s.Tasks) == 0 {
		return m.fail(s, &agent.AgentError{
			Agent:   m.cfg.PlanningAgents[0],
			Kind:    agent.KindMalformedOutput,
			Message: "planning produced no tasks",
		})
	}

	return m.schedule(ctx, s, view)
}

// schedule packages the task set into a plan and completes the session.
func (m *Machine) schedule(ctx context.Context, s *models.ConversationSession, view agent.StateView) error {
	s.State = models.StateScheduling

	if m.cfg.SchedulerAgent == "" {
		s.Plan = m.defaultPlan(s.Tasks)
	} else {
		ag, ok := m.agents.Lookup(m.cfg.SchedulerAgent)
		if !ok {
			return fmt.Errorf("scheduler agent %q not registered", m.cfg.SchedulerAgent)
		}
		res, err := m.invoke(ctx, s, ag, view)
		if err != nil {
			return err
		}
		s.Plan = &models.Plan{Sprints: res.Sprints}
	}

	if err := s.Plan.Validate(); err != nil {
		return m.fail(s, fmt.Errorf("final plan invalid: %w", err))
	}

	s.State = models.StateComplete
	m.logger.Log("[machine] session %s: complete, %d sprints, %d tasks",
		s.ID, len(s.Plan.Sprints), s.Plan.TaskCount())
	return nil
}

// invoke calls an agent, retrying once when its output is malformed.
// Failures that cannot be retried mark the session failed.
func (m *Machine) invoke(ctx context.Context, s *models.ConversationSession, ag agent.Agent, view agent.StateView) (*agent.Result, error) {
	res, err := ag.Invoke(ctx, view)
	if agent.IsMalformed(err) {
		m.logger.Log("[machine] session %s: %s output malformed, retrying once: %v", s.ID, ag.Name(), err)
		res, err = ag.Invoke(ctx, view)
	}
	if err != nil {
		if agent.IsMalformed(err) || provider.IsKind(err, provider.KindExhausted) {
			return nil, m.fail(s, err)
		}
		// Auth errors, invalid requests and caller cancellation leave
		// the session retryable.
		return nil, err
	}
	return res, nil
}

// fail transitions the session to its failed terminal state.
func (m *Machine) fail(s *models.ConversationSession, err error) error {
	s.State = models.StateFailed
	s.LastError = err.Error()
	m.logger.Log("[machine] session %s: failed: %v", s.ID, err)
	return err
}

// defaultPlan wraps the task set in a single two-week sprint.
func (m *Machine) defaultPlan(tasks []models.Task) *models.Plan {
	start := m.now().Truncate(24 * time.Hour)
	return &models.Plan{
		Sprints: []models.Sprint{{
			Name:      "Sprint 1",
			StartDate: start,
			EndDate:   start.Add(defaultSprintLength),
			Tasks:     tasks,
		}},
	}
}
