package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/trellishq/trellis/internal/provider"
	"github.com/trellishq/trellis/pkg/models"
)

// PlannerName is the registry name of the planner agent.
const PlannerName = "planner"

// plannerResponse is the JSON structure returned by the model: either
// a clarifying question or a task decomposition.
type plannerResponse struct {
	Question *struct {
		Text     string `json:"text"`
		Required bool   `json:"required"`
	} `json:"question"`
	Tasks []plannedTask `json:"tasks"`
}

type plannedTask struct {
	Title         string  `json:"title"`
	Detail        string  `json:"detail"`
	Priority      string  `json:"priority"`
	EstimateHours float64 `json:"estimate_hours"`
}

// Planner asks clarifying questions about a goal until it can
// decompose it into tasks.
type Planner struct {
	completer    Completer
	providerName string
}

// NewPlanner creates a Planner routed to the given provider.
func NewPlanner(completer Completer, providerName string) *Planner {
	return &Planner{completer: completer, providerName: providerName}
}

// Name implements Agent.
func (p *Planner) Name() string { return PlannerName }

// Invoke implements Agent. It returns a clarification question when the
// goal is too vague, or a validated task decomposition otherwise.
func (p *Planner) Invoke(ctx context.Context, view StateView) (*Result, error) {
	prompt := fmt.Sprintf(plannerPrompt, view.Goal, formatClarifications(view.Clarifications))

	raw, err := p.completer.Complete(ctx, p.providerName, prompt, provider.CallOptions{})
	if err != nil {
		return nil, err
	}

	jsonStr, err := extractJSONObject(raw)
	if err != nil {
		return nil, malformed(PlannerName, "%v", err)
	}

	var resp plannerResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return nil, &AgentError{Agent: PlannerName, Kind: KindMalformedOutput, Message: "unmarshal response", Err: err}
	}

	if resp.Question != nil {
		if strings.TrimSpace(resp.Question.Text) == "" {
			return nil, malformed(PlannerName, "question with empty text")
		}
		return &Result{Clarification: &models.ClarificationQuestion{
			Text:     resp.Question.Text,
			Required: resp.Question.Required,
		}}, nil
	}

	if len(resp.Tasks) == 0 {
		return nil, malformed(PlannerName, "response carries neither question nor tasks")
	}

	tasks := make([]models.Task, len(resp.Tasks))
	for i, pt := range resp.Tasks {
		tasks[i] = models.Task{
			ID:            uuid.New().String(),
			Title:         pt.Title,
			Detail:        pt.Detail,
			Priority:      models.Priority(pt.Priority),
			EstimateHours: pt.EstimateHours,
		}
		if err := tasks[i].Validate(); err != nil {
			return nil, &AgentError{Agent: PlannerName, Kind: KindMalformedOutput, Message: "task failed validation", Err: err}
		}
	}

	result := &Result{Tasks: tasks}
	if err := result.validate(); err != nil {
		return nil, malformed(PlannerName, "%v", err)
	}
	return result, nil
}

// formatClarifications renders the question/answer history for
// inclusion in a prompt. Returns "" when there is no history.
func formatClarifications(history []models.ClarificationExchange) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nClarifications so far:\n")
	for _, ex := range history {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", ex.Question, ex.Answer)
	}
	return b.String()
}
