package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/trellishq/trellis/internal/agent"
	"github.com/trellishq/trellis/internal/state"
	"github.com/trellishq/trellis/pkg/models"
)

// failingStore wraps a Store and fails writes on demand.
type failingStore struct {
	state.Store
	failPuts bool
}

func (f *failingStore) Put(ctx context.Context, s *models.ConversationSession) error {
	if f.failPuts {
		return errors.New("disk full")
	}
	return f.Store.Put(ctx, s)
}

// recordingArchiver captures sessions handed to the memory index.
type recordingArchiver struct {
	mu       sync.Mutex
	archived []string
}

func (r *recordingArchiver) Archive(ctx context.Context, s *models.ConversationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archived = append(r.archived, s.ID)
	return nil
}

func newTestCoordinator(t *testing.T, cfg CoordinatorConfig, store state.Store, agents ...agent.Agent) *Coordinator {
	t.Helper()
	reg := agent.NewRegistry()
	for _, a := range agents {
		if err := reg.Register(a); err != nil {
			t.Fatalf("Register(%s) failed: %v", a.Name(), err)
		}
	}
	m := NewMachine(reg, MachineConfig{PlanningAgents: []string{"planner"}, MaxClarifications: 3})
	m.now = func() time.Time { return time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC) }

	c := NewCoordinator(m, store, cfg)
	ids := 0
	c.newID = func() string {
		ids++
		return fmt.Sprintf("session-%d", ids)
	}
	return c
}

func TestCoordinatorFullConversation(t *testing.T) {
	planner := &scriptedAgent{name: "planner", queue: []scriptedStep{
		questionStep("What platform?"),
		tasksStep(),
	}}
	store := state.NewMemoryStore()
	archiver := &recordingArchiver{}
	c := newTestCoordinator(t, CoordinatorConfig{Memory: archiver}, store, planner)
	ctx := context.Background()

	snap, err := c.Step(ctx, "", "Build a habit tracking app")
	if err != nil {
		t.Fatalf("first Step failed: %v", err)
	}
	if snap.SessionID == "" {
		t.Fatal("a new session must get an ID")
	}
	if snap.Status != StatusNeedsClarification {
		t.Fatalf("Status = %q, want needs_clarification", snap.Status)
	}
	if snap.Question == nil || snap.Question.Text != "What platform?" {
		t.Fatalf("Question = %+v", snap.Question)
	}

	snap, err = c.Step(ctx, snap.SessionID, "iOS")
	if err != nil {
		t.Fatalf("second Step failed: %v", err)
	}
	if snap.Status != StatusComplete {
		t.Fatalf("Status = %q, want complete", snap.Status)
	}
	if snap.Plan == nil || snap.Plan.TaskCount() != 2 {
		t.Fatalf("Plan = %+v, want 2 tasks", snap.Plan)
	}

	// Completion reaches the conversation memory.
	if len(archiver.archived) != 1 || archiver.archived[0] != snap.SessionID {
		t.Errorf("archived = %v, want the completed session", archiver.archived)
	}

	// The store carries the committed terminal session.
	stored, err := store.Get(ctx, snap.SessionID)
	if err != nil || stored == nil {
		t.Fatalf("stored session missing: %v", err)
	}
	if stored.State != models.StateComplete || stored.ClarificationCount != 1 {
		t.Errorf("stored session = %+v", stored)
	}
}

func TestCoordinatorReplayIsIdempotent(t *testing.T) {
	planner := &scriptedAgent{name: "planner", queue: []scriptedStep{
		questionStep("What platform?"),
		questionStep("Native or cross-platform?"),
	}}
	store := state.NewMemoryStore()
	c := newTestCoordinator(t, CoordinatorConfig{}, store, planner)
	ctx := context.Background()

	first, err := c.Step(ctx, "", "Build a habit tracking app")
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	// The goal delivered again must not advance anything.
	second, err := c.Step(ctx, first.SessionID, "Build a habit tracking app")
	if err != nil {
		t.Fatalf("replayed Step failed: %v", err)
	}
	if second.Status != StatusNeedsClarification || second.Question.Text != "What platform?" {
		t.Errorf("replay snapshot = %+v", second)
	}
	if planner.calls() != 1 {
		t.Errorf("planner called %d times, want 1", planner.calls())
	}

	// Answer once, then replay the answer. The round counter must not
	// move twice.
	if _, err := c.Step(ctx, first.SessionID, "iOS"); err != nil {
		t.Fatalf("answer Step failed: %v", err)
	}
	replay, err := c.Step(ctx, first.SessionID, "iOS")
	if err != nil {
		t.Fatalf("replayed answer failed: %v", err)
	}
	if replay.Question == nil || replay.Question.Text != "Native or cross-platform?" {
		t.Errorf("replay snapshot = %+v", replay)
	}

	stored, _ := store.Get(ctx, first.SessionID)
	if stored.ClarificationCount != 1 {
		t.Errorf("ClarificationCount = %d, want 1", stored.ClarificationCount)
	}
	if planner.calls() != 2 {
		t.Errorf("planner called %d times, want 2", planner.calls())
	}
}

func TestCoordinatorUnknownSessionWithoutInput(t *testing.T) {
	c := newTestCoordinator(t, CoordinatorConfig{}, state.NewMemoryStore(),
		&scriptedAgent{name: "planner"})

	_, err := c.Step(context.Background(), "ghost", "   ")
	if !IsKind(err, KindSessionNotFound) {
		t.Fatalf("expected session_not_found, got %v", err)
	}
}

func TestCoordinatorResumesUnderCallerID(t *testing.T) {
	planner := &scriptedAgent{name: "planner", queue: []scriptedStep{tasksStep()}}
	c := newTestCoordinator(t, CoordinatorConfig{}, state.NewMemoryStore(), planner)

	snap, err := c.Step(context.Background(), "external-7", "Build a habit tracking app")
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if snap.SessionID != "external-7" {
		t.Errorf("SessionID = %q, want the caller's ID", snap.SessionID)
	}
	if snap.Status != StatusComplete {
		t.Errorf("Status = %q", snap.Status)
	}
}

func TestCoordinatorBusyFailsFast(t *testing.T) {
	gate := make(chan struct{})
	planner := &scriptedAgent{name: "planner", block: gate, queue: []scriptedStep{tasksStep()}}
	c := newTestCoordinator(t, CoordinatorConfig{}, state.NewMemoryStore(), planner)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := c.Step(ctx, "s1", "Build a habit tracking app")
		done <- err
	}()

	// Wait for the first step to take the session lock.
	for i := 0; planner.calls() == 0 && i < 200; i++ {
		time.Sleep(5 * time.Millisecond)
	}

	_, err := c.Step(ctx, "s1", "another input")
	if !IsKind(err, KindSessionBusy) {
		t.Fatalf("expected session_busy, got %v", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("blocked Step failed: %v", err)
	}
}

func TestCoordinatorBusyWaits(t *testing.T) {
	gate := make(chan struct{})
	planner := &scriptedAgent{name: "planner", block: gate, queue: []scriptedStep{tasksStep()}}
	c := newTestCoordinator(t, CoordinatorConfig{WaitWhenBusy: true}, state.NewMemoryStore(), planner)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := c.Step(ctx, "s1", "Build a habit tracking app")
		done <- err
	}()
	for i := 0; planner.calls() == 0 && i < 200; i++ {
		time.Sleep(5 * time.Millisecond)
	}

	second := make(chan *Snapshot, 1)
	go func() {
		snap, err := c.Step(ctx, "s1", "anything else")
		if err != nil {
			t.Errorf("waiting Step failed: %v", err)
		}
		second <- snap
	}()

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first Step failed: %v", err)
	}

	snap := <-second
	// The first step completed the session, so the waiter just sees
	// the terminal snapshot.
	if snap.Status != StatusComplete {
		t.Errorf("Status = %q, want complete", snap.Status)
	}
}

func TestCoordinatorPersistenceFailureDoesNotCommit(t *testing.T) {
	planner := &scriptedAgent{name: "planner", queue: []scriptedStep{
		questionStep("What platform?"),
		questionStep("What platform?"),
	}}
	backing := state.NewMemoryStore()
	store := &failingStore{Store: backing, failPuts: true}
	c := newTestCoordinator(t, CoordinatorConfig{}, store, planner)
	ctx := context.Background()

	_, err := c.Step(ctx, "s1", "Build a habit tracking app")
	if !IsKind(err, KindPersistence) {
		t.Fatalf("expected persistence_error, got %v", err)
	}

	// Nothing was committed.
	if stored, _ := backing.Get(ctx, "s1"); stored != nil {
		t.Fatalf("failed step leaked state: %+v", stored)
	}

	// The same input succeeds once the store recovers.
	store.failPuts = false
	snap, err := c.Step(ctx, "s1", "Build a habit tracking app")
	if err != nil {
		t.Fatalf("retried Step failed: %v", err)
	}
	if snap.Status != StatusNeedsClarification {
		t.Errorf("Status = %q", snap.Status)
	}
}

func TestCoordinatorTerminalReplay(t *testing.T) {
	planner := &scriptedAgent{name: "planner", queue: []scriptedStep{tasksStep()}}
	store := state.NewMemoryStore()
	c := newTestCoordinator(t, CoordinatorConfig{}, store, planner)
	ctx := context.Background()

	snap, err := c.Step(ctx, "s1", "Build a habit tracking app")
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if snap.Status != StatusComplete {
		t.Fatalf("Status = %q", snap.Status)
	}

	again, err := c.Step(ctx, "s1", "thanks, one more thing")
	if err != nil {
		t.Fatalf("Step on a complete session failed: %v", err)
	}
	if again.Status != StatusComplete || again.Plan == nil {
		t.Errorf("terminal snapshot = %+v", again)
	}
	if planner.calls() != 1 {
		t.Errorf("terminal session invoked agents, %d calls", planner.calls())
	}
}

func TestCoordinatorGetReportsMidPhaseSession(t *testing.T) {
	store := state.NewMemoryStore()
	c := newTestCoordinator(t, CoordinatorConfig{}, store, &scriptedAgent{name: "planner"})
	ctx := context.Background()

	// A session persisted between phases, e.g. by an operator restoring
	// a backup, has neither a question nor a terminal outcome to show.
	if err := store.Put(ctx, &models.ConversationSession{
		ID:        "s1",
		State:     models.StatePlanning,
		Goal:      "Build a habit tracking app",
		ExpiresAt: time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	snap, err := c.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if snap.Status != StatusInProgress {
		t.Errorf("Status = %q, want in_progress", snap.Status)
	}
}

func TestCoordinatorGet(t *testing.T) {
	planner := &scriptedAgent{name: "planner", queue: []scriptedStep{questionStep("What platform?")}}
	c := newTestCoordinator(t, CoordinatorConfig{}, state.NewMemoryStore(), planner)
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); !IsKind(err, KindSessionNotFound) {
		t.Fatalf("expected session_not_found, got %v", err)
	}

	snap, err := c.Step(ctx, "s1", "Build a habit tracking app")
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	got, err := c.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != snap.Status || got.Question.Text != "What platform?" {
		t.Errorf("Get snapshot = %+v", got)
	}
}

func TestCoordinatorSetsExpiry(t *testing.T) {
	planner := &scriptedAgent{name: "planner", queue: []scriptedStep{questionStep("What platform?")}}
	store := state.NewMemoryStore()
	c := newTestCoordinator(t, CoordinatorConfig{SessionTTL: 30 * time.Minute}, store, planner)

	// The store's expiry check runs against the real clock, so the
	// pinned "now" must not place ExpiresAt in the real past.
	current := time.Now().UTC().Truncate(time.Second)
	c.now = func() time.Time { return current }

	if _, err := c.Step(context.Background(), "s1", "Build a habit tracking app"); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	stored, _ := store.Get(context.Background(), "s1")
	if want := current.Add(30 * time.Minute); !stored.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", stored.ExpiresAt, want)
	}
}
