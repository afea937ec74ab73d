// Package persist stores risk-state snapshots behind interchangeable
// backends: local filesystem, PostgreSQL, or S3-compatible object storage.
package persist

import (
	"context"
	"time"

	"github.com/polyarb/setbot/internal/domain"
)

// Backend persists a payload under a storage key.
type Backend interface {
	Save(ctx context.Context, key string, payload []byte) error
}

// Store implements domain.SnapshotStore over a Backend, deriving a unique
// key per snapshot from its name and timestamp.
type Store struct {
	backend Backend
	now     domain.Clock
}

var _ domain.SnapshotStore = (*Store)(nil)

// NewStore creates a snapshot store over the given backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend, now: time.Now}
}

// PersistSnapshot writes the payload under "snapshots/<name>-<timestamp>"
// and returns the key.
func (s *Store) PersistSnapshot(ctx context.Context, name string, payload []byte) (string, error) {
	key := "snapshots/" + name + "-" + s.now().UTC().Format(time.RFC3339Nano)
	if err := s.backend.Save(ctx, key, payload); err != nil {
		return "", err
	}
	return key, nil
}
