package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/trellishq/trellis/pkg/models"
)

// MemoryStore keeps sessions in process memory. Sessions are stored as
// serialized snapshots so callers never share mutable state with the
// store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte

	// now is injectable for expiry tests.
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]byte),
		now:      time.Now,
	}
}

// Get implements Store. Expired sessions are treated as absent.
func (m *MemoryStore) Get(ctx context.Context, id string) (*models.ConversationSession, error) {
	m.mu.RLock()
	raw, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var s models.ConversationSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if !s.ExpiresAt.IsZero() && !s.ExpiresAt.After(m.now()) {
		return nil, nil
	}
	return &s, nil
}

// Put implements Store.
func (m *MemoryStore) Put(ctx context.Context, session *models.ConversationSession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session has no ID")
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}

	m.mu.Lock()
	m.sessions[session.ID] = raw
	m.mu.Unlock()
	return nil
}

// Delete implements Store. Deleting an absent session is not an error.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// PurgeExpired implements Store.
func (m *MemoryStore) PurgeExpired(ctx context.Context) (int64, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var purged int64
	for id, raw := range m.sessions {
		var s models.ConversationSession
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if !s.ExpiresAt.IsZero() && !s.ExpiresAt.After(now) {
			delete(m.sessions, id)
			purged++
		}
	}
	return purged, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
