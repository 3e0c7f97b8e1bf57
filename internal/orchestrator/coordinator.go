package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trellishq/trellis/internal/state"
	"github.com/trellishq/trellis/pkg/models"
)

// Snapshot statuses reported to callers. Step only ever lands on
// needs_clarification, complete or failed; in_progress shows up when a
// session persisted between phases is observed through Get before its
// next step resumes it.
const (
	StatusNeedsClarification = "needs_clarification"
	StatusInProgress         = "in_progress"
	StatusComplete           = "complete"
	StatusFailed             = "failed"
)

// Snapshot is the externally visible result of a coordinator step.
type Snapshot struct {
	SessionID string                        `json:"session_id"`
	State     models.SessionState           `json:"state"`
	Status    string                        `json:"status"`
	Question  *models.ClarificationQuestion `json:"question,omitempty"`
	Plan      *models.Plan                  `json:"plan,omitempty"`
	Error     string                        `json:"error,omitempty"`
}

// Archiver records finished conversations for later recall.
type Archiver interface {
	Archive(ctx context.Context, session *models.ConversationSession) error
}

// CoordinatorConfig holds coordinator tunables.
type CoordinatorConfig struct {
	// SessionTTL is how long a session stays resumable after its last
	// committed step.
	SessionTTL time.Duration
	// WaitWhenBusy makes Step block until a concurrent step on the
	// same session finishes instead of failing fast.
	WaitWhenBusy bool
	// Memory, when set, receives completed sessions. Archive failures
	// are logged but never fail the step.
	Memory Archiver
	Logger *DebugLogger
}

// Coordinator serializes steps per session and owns persistence. All
// state machine effects go through the store: a step whose write fails
// is not committed and can be retried with the same input.
type Coordinator struct {
	machine *Machine
	store   state.Store
	cfg     CoordinatorConfig
	logger  *DebugLogger

	mu   sync.Mutex
	busy map[string]chan struct{}

	// now and newID are injectable for tests.
	now   func() time.Time
	newID func() string
}

// NewCoordinator creates a Coordinator over the given machine and store.
func NewCoordinator(machine *Machine, store state.Store, cfg CoordinatorConfig) *Coordinator {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = NopLogger()
	}
	return &Coordinator{
		machine: machine,
		store:   store,
		cfg:     cfg,
		logger:  logger,
		busy:    make(map[string]chan struct{}),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Step feeds one user input into a session and returns its snapshot.
//
// An empty sessionID starts a new session. A known sessionID resumes;
// an unknown one starts a session under that ID when the input is
// non-empty and fails with session_not_found otherwise. Feeding a
// session the same input it last processed is a no-op that returns the
// current snapshot, so delivery retries are safe.
func (c *Coordinator) Step(ctx context.Context, sessionID, input string) (*Snapshot, error) {
	if sessionID == "" {
		sessionID = c.newID()
	}

	release, err := c.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	s, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return nil, &EngineError{SessionID: sessionID, Kind: KindPersistence, Message: "load session", Err: err}
	}
	if s == nil {
		if strings.TrimSpace(input) == "" {
			return nil, &EngineError{SessionID: sessionID, Kind: KindSessionNotFound}
		}
		now := c.now()
		s = &models.ConversationSession{
			ID:        sessionID,
			State:     models.StateAwaitingGoal,
			CreatedAt: now,
			UpdatedAt: now,
			ExpiresAt: now.Add(c.cfg.SessionTTL),
		}
		c.logger.Log("[coordinator] session %s: created", sessionID)
	}

	if s.State.Terminal() {
		return c.snapshot(s), nil
	}
	if input != "" && input == s.LastInput {
		c.logger.Log("[coordinator] session %s: duplicate input, replaying snapshot", sessionID)
		return c.snapshot(s), nil
	}
	if input == "" && s.PendingQuestion != nil {
		// Nothing to process. Repeat the open question.
		return c.snapshot(s), nil
	}

	work, err := cloneSession(s)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	work.LastInput = input

	stepErr := c.machine.Step(ctx, work, input)
	if stepErr != nil && work.State != models.StateFailed {
		// Uncommitted failure. The stored session is untouched, the
		// same input can be retried.
		return nil, stepErr
	}

	work.UpdatedAt = c.now()
	work.ExpiresAt = work.UpdatedAt.Add(c.cfg.SessionTTL)
	if err := c.store.Put(ctx, work); err != nil {
		return nil, &EngineError{SessionID: sessionID, Kind: KindPersistence, Message: "save session", Err: err}
	}

	if work.State == models.StateComplete && c.cfg.Memory != nil {
		if err := c.cfg.Memory.Archive(ctx, work); err != nil {
			c.logger.Log("[coordinator] session %s: archive failed: %v", sessionID, err)
		}
	}

	return c.snapshot(work), nil
}

// Get returns the snapshot of an existing session without advancing it.
func (c *Coordinator) Get(ctx context.Context, sessionID string) (*Snapshot, error) {
	s, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return nil, &EngineError{SessionID: sessionID, Kind: KindPersistence, Message: "load session", Err: err}
	}
	if s == nil {
		return nil, &EngineError{SessionID: sessionID, Kind: KindSessionNotFound}
	}
	return c.snapshot(s), nil
}

// PurgeExpired drops sessions whose TTL has lapsed.
func (c *Coordinator) PurgeExpired(ctx context.Context) (int64, error) {
	return c.store.PurgeExpired(ctx)
}

// acquire takes the per-session step lock. With WaitWhenBusy it blocks
// until the holder releases or the context ends; otherwise a busy
// session fails fast with session_busy.
func (c *Coordinator) acquire(ctx context.Context, sessionID string) (func(), error) {
	for {
		c.mu.Lock()
		holder, busy := c.busy[sessionID]
		if !busy {
			done := make(chan struct{})
			c.busy[sessionID] = done
			c.mu.Unlock()
			return func() {
				c.mu.Lock()
				delete(c.busy, sessionID)
				c.mu.Unlock()
				close(done)
			}, nil
		}
		c.mu.Unlock()

		if !c.cfg.WaitWhenBusy {
			return nil, &EngineError{SessionID: sessionID, Kind: KindSessionBusy}
		}
		select {
		case <-holder:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Coordinator) snapshot(s *models.ConversationSession) *Snapshot {
	snap := &Snapshot{SessionID: s.ID, State: s.State}
	switch {
	case s.State == models.StateFailed:
		snap.Status = StatusFailed
		snap.Error = s.LastError
	case s.State == models.StateComplete:
		snap.Status = StatusComplete
		snap.Plan = s.Plan
	case s.PendingQuestion != nil:
		snap.Status = StatusNeedsClarification
		snap.Question = s.PendingQuestion
	default:
		snap.Status = StatusInProgress
	}
	return snap
}

// cloneSession deep-copies a session so a failed step never leaks
// partial mutations into the caller-visible state.
func cloneSession(s *models.ConversationSession) (*models.ConversationSession, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("clone session: %w", err)
	}
	clone := &models.ConversationSession{}
	if err := json.Unmarshal(raw, clone); err != nil {
		return nil, fmt.Errorf("clone session: %w", err)
	}
	return clone, nil
}
