// Package agent defines the pluggable planning-agent contract and the
// concrete agents that map conversation state to clarification
// questions or structured planning updates.
package agent

import (
	"context"
	"fmt"

	"github.com/trellishq/trellis/internal/provider"
	"github.com/trellishq/trellis/pkg/models"
)

// Completer is the slice of the provider gateway that agents use.
type Completer interface {
	Complete(ctx context.Context, providerName, prompt string, opts provider.CallOptions) (string, error)
}

// StateView is the read-only view of a session handed to an agent.
// Agents never mutate session state directly.
type StateView struct {
	// SessionID identifies the session, for logging only.
	SessionID string
	// Goal is the user's stated goal.
	Goal string
	// Clarifications is the question/answer history so far.
	Clarifications []models.ClarificationExchange
	// Tasks is the current working task set, if planning has begun.
	Tasks []models.Task
}

// Result is the outcome of one agent invocation. Exactly one field
// group is set: either a clarification question or a partial update
// (tasks and/or sprints).
type Result struct {
	// Clarification is set when the agent needs more information.
	Clarification *models.ClarificationQuestion
	// Tasks is a task-set update produced by the agent.
	Tasks []models.Task
	// Sprints is a sprint packaging produced by the agent.
	Sprints []models.Sprint
}

// NeedsClarification returns true if the result is a question.
func (r *Result) NeedsClarification() bool {
	return r.Clarification != nil
}

// validate enforces the one-of shape of the contract.
func (r *Result) validate() error {
	hasUpdate := len(r.Tasks) > 0 || len(r.Sprints) > 0
	if r.Clarification != nil && hasUpdate {
		return fmt.Errorf("agent result carries both a question and an update")
	}
	if r.Clarification == nil && !hasUpdate {
		return fmt.Errorf("agent result is empty")
	}
	return nil
}

// Agent is a pluggable planning agent. Implementations are stateless
// with respect to sessions and safe for concurrent use.
type Agent interface {
	// Name returns the stable registry name.
	Name() string
	// Invoke maps the session view to a clarification question or a
	// partial planning update. Schema violations in the underlying
	// model output are returned as *AgentError of kind MalformedOutput.
	Invoke(ctx context.Context, view StateView) (*Result, error)
}
