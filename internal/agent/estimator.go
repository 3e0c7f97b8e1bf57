package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/trellishq/trellis/internal/provider"
)

// EstimatorName is the registry name of the estimator agent.
const EstimatorName = "estimator"

// estimateChange is one model-proposed estimate adjustment.
type estimateChange struct {
	ID            string  `json:"id"`
	EstimateHours float64 `json:"estimate_hours"`
}

// Estimator reviews a task set and corrects effort estimates.
type Estimator struct {
	completer    Completer
	providerName string
}

// NewEstimator creates an Estimator routed to the given provider.
func NewEstimator(completer Completer, providerName string) *Estimator {
	return &Estimator{completer: completer, providerName: providerName}
}

// Name implements Agent.
func (e *Estimator) Name() string { return EstimatorName }

// Invoke implements Agent. It returns the full task set with any
// model-proposed estimate changes applied. Non-positive estimates and
// unknown task references are MalformedOutput.
func (e *Estimator) Invoke(ctx context.Context, view StateView) (*Result, error) {
	if len(view.Tasks) == 0 {
		return nil, &AgentError{Agent: EstimatorName, Kind: KindCapabilityUnavailable, Message: "no tasks to estimate"}
	}

	prompt := fmt.Sprintf(estimatorPrompt, view.Goal, formatTasks(view.Tasks))
	raw, err := e.completer.Complete(ctx, e.providerName, prompt, provider.CallOptions{})
	if err != nil {
		return nil, err
	}

	jsonStr, err := extractJSONArray(raw)
	if err != nil {
		return nil, malformed(EstimatorName, "%v", err)
	}

	var changes []estimateChange
	if err := json.Unmarshal([]byte(jsonStr), &changes); err != nil {
		return nil, &AgentError{Agent: EstimatorName, Kind: KindMalformedOutput, Message: "unmarshal response", Err: err}
	}

	tasks := cloneTasks(view.Tasks)
	byID := taskIndex(tasks)
	for _, ch := range changes {
		idx, ok := byID[ch.ID]
		if !ok {
			return nil, malformed(EstimatorName, "change references unknown task %q", ch.ID)
		}
		if ch.EstimateHours <= 0 {
			return nil, malformed(EstimatorName, "non-positive estimate %v for task %q", ch.EstimateHours, ch.ID)
		}
		tasks[idx].EstimateHours = ch.EstimateHours
	}

	return &Result{Tasks: tasks}, nil
}
