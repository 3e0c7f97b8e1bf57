package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/trellishq/trellis/internal/provider"
	"github.com/trellishq/trellis/pkg/models"
)

// SchedulerName is the registry name of the sprint scheduler agent.
const SchedulerName = "scheduler"

// scheduleResponse is the JSON structure returned by the model.
type scheduleResponse struct {
	Sprints []scheduledSprint `json:"sprints"`
}

type scheduledSprint struct {
	Name      string   `json:"name"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	TaskIDs   []string `json:"task_ids"`
}

// dateLayout is the wire format for sprint dates.
const dateLayout = "2006-01-02"

// Scheduler packages a task set into time-boxed sprints.
type Scheduler struct {
	completer    Completer
	providerName string
	// now is injectable for tests.
	now func() time.Time
}

// NewScheduler creates a Scheduler routed to the given provider.
func NewScheduler(completer Completer, providerName string) *Scheduler {
	return &Scheduler{completer: completer, providerName: providerName, now: time.Now}
}

// Name implements Agent.
func (s *Scheduler) Name() string { return SchedulerName }

// Invoke implements Agent. It asks the model to group the working task
// set into sprints and validates the result: known task IDs only, each
// task scheduled exactly once, end date not before start date.
func (s *Scheduler) Invoke(ctx context.Context, view StateView) (*Result, error) {
	if len(view.Tasks) == 0 {
		return nil, &AgentError{Agent: SchedulerName, Kind: KindCapabilityUnavailable, Message: "no tasks to schedule"}
	}

	start := s.now().Format(dateLayout)
	prompt := fmt.Sprintf(schedulerPrompt, start, view.Goal, formatTasks(view.Tasks))

	raw, err := s.completer.Complete(ctx, s.providerName, prompt, provider.CallOptions{})
	if err != nil {
		return nil, err
	}

	jsonStr, err := extractJSONObject(raw)
	if err != nil {
		return nil, malformed(SchedulerName, "%v", err)
	}

	var resp scheduleResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return nil, &AgentError{Agent: SchedulerName, Kind: KindMalformedOutput, Message: "unmarshal response", Err: err}
	}
	if len(resp.Sprints) == 0 {
		return nil, malformed(SchedulerName, "no sprints in response")
	}

	byID := taskIndex(view.Tasks)
	assigned := make(map[string]bool, len(view.Tasks))
	sprints := make([]models.Sprint, len(resp.Sprints))

	for i, sp := range resp.Sprints {
		startDate, err := time.Parse(dateLayout, sp.StartDate)
		if err != nil {
			return nil, malformed(SchedulerName, "sprint %q: bad start date %q", sp.Name, sp.StartDate)
		}
		endDate, err := time.Parse(dateLayout, sp.EndDate)
		if err != nil {
			return nil, malformed(SchedulerName, "sprint %q: bad end date %q", sp.Name, sp.EndDate)
		}

		tasks := make([]models.Task, 0, len(sp.TaskIDs))
		for _, id := range sp.TaskIDs {
			idx, ok := byID[id]
			if !ok {
				return nil, malformed(SchedulerName, "sprint %q references unknown task %q", sp.Name, id)
			}
			if assigned[id] {
				return nil, malformed(SchedulerName, "task %q scheduled more than once", id)
			}
			assigned[id] = true
			tasks = append(tasks, view.Tasks[idx])
		}

		sprints[i] = models.Sprint{
			Name:      sp.Name,
			StartDate: startDate,
			EndDate:   endDate,
			Tasks:     tasks,
		}
		if err := sprints[i].Validate(); err != nil {
			return nil, &AgentError{Agent: SchedulerName, Kind: KindMalformedOutput, Message: "sprint failed validation", Err: err}
		}
	}

	if len(assigned) != len(view.Tasks) {
		return nil, malformed(SchedulerName, "%d of %d tasks left unscheduled",
			len(view.Tasks)-len(assigned), len(view.Tasks))
	}

	return &Result{Sprints: sprints}, nil
}
