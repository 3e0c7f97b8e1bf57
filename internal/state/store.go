// Package state provides session persistence for Trellis. Sessions can
// be held in memory or in an SQLite database (.trellis/sessions.db or a
// configured path).
package state

import (
	"context"
	"io"

	"github.com/trellishq/trellis/pkg/models"
)

// Store defines the interface for session persistence. The coordinator
// works with any backend through this interface.
//
// Get returns (nil, nil) when no session with the given ID exists or
// when the stored session has expired. Put overwrites any existing
// session with the same ID.
type Store interface {
	io.Closer
	Get(ctx context.Context, id string) (*models.ConversationSession, error)
	Put(ctx context.Context, session *models.ConversationSession) error
	Delete(ctx context.Context, id string) error
	// PurgeExpired removes sessions whose expiry has passed and
	// returns how many were removed.
	PurgeExpired(ctx context.Context) (int64, error)
}

// Compile-time verification that both backends implement Store.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*DB)(nil)
)
