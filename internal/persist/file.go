package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend stores snapshots as files under a base directory. Slashes in
// the key become subdirectories.
type FileBackend struct {
	base string
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend creates the base directory if needed.
func NewFileBackend(base string) (*FileBackend, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("persist: create base dir %s: %w", base, err)
	}
	return &FileBackend{base: base}, nil
}

func (b *FileBackend) Save(_ context.Context, key string, payload []byte) error {
	path := filepath.Join(b.base, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("persist: create dir for %s: %w", key, err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("persist: write %s: %w", key, err)
	}
	return nil
}
