package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/trellishq/trellis/internal/provider"
	"github.com/trellishq/trellis/pkg/models"
)

// PrioritizerName is the registry name of the prioritizer agent.
const PrioritizerName = "prioritizer"

// priorityChange is one model-proposed priority adjustment.
type priorityChange struct {
	ID       string `json:"id"`
	Priority string `json:"priority"`
}

// Prioritizer reviews a task set and reassigns priorities.
type Prioritizer struct {
	completer    Completer
	providerName string
}

// NewPrioritizer creates a Prioritizer routed to the given provider.
func NewPrioritizer(completer Completer, providerName string) *Prioritizer {
	return &Prioritizer{completer: completer, providerName: providerName}
}

// Name implements Agent.
func (p *Prioritizer) Name() string { return PrioritizerName }

// Invoke implements Agent. It returns the full task set with any
// model-proposed priority changes applied. A change referencing an
// unknown task or an invalid priority is MalformedOutput.
func (p *Prioritizer) Invoke(ctx context.Context, view StateView) (*Result, error) {
	if len(view.Tasks) == 0 {
		return nil, &AgentError{Agent: PrioritizerName, Kind: KindCapabilityUnavailable, Message: "no tasks to prioritize"}
	}

	prompt := fmt.Sprintf(prioritizerPrompt, view.Goal, formatTasks(view.Tasks))
	raw, err := p.completer.Complete(ctx, p.providerName, prompt, provider.CallOptions{})
	if err != nil {
		return nil, err
	}

	jsonStr, err := extractJSONArray(raw)
	if err != nil {
		return nil, malformed(PrioritizerName, "%v", err)
	}

	var changes []priorityChange
	if err := json.Unmarshal([]byte(jsonStr), &changes); err != nil {
		return nil, &AgentError{Agent: PrioritizerName, Kind: KindMalformedOutput, Message: "unmarshal response", Err: err}
	}

	tasks := cloneTasks(view.Tasks)
	byID := taskIndex(tasks)
	for _, ch := range changes {
		idx, ok := byID[ch.ID]
		if !ok {
			return nil, malformed(PrioritizerName, "change references unknown task %q", ch.ID)
		}
		pr := models.Priority(ch.Priority)
		if !pr.Valid() {
			return nil, malformed(PrioritizerName, "invalid priority %q for task %q", ch.Priority, ch.ID)
		}
		tasks[idx].Priority = pr
	}

	return &Result{Tasks: tasks}, nil
}

// cloneTasks copies a task slice so agents never alias session state.
func cloneTasks(tasks []models.Task) []models.Task {
	out := make([]models.Task, len(tasks))
	copy(out, tasks)
	return out
}

// taskIndex maps task IDs to slice positions.
func taskIndex(tasks []models.Task) map[string]int {
	idx := make(map[string]int, len(tasks))
	for i, t := range tasks {
		idx[t.ID] = i
	}
	return idx
}

// formatTasks renders tasks as JSON for inclusion in a prompt.
func formatTasks(tasks []models.Task) string {
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", tasks)
	}
	return string(data)
}
