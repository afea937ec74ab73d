// Package audit appends execution events to a JSONL file so every attempt
// leaves a durable record independent of logging configuration.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/polyarb/setbot/internal/domain"
)

// Log is an append-only JSONL writer. Each record gets a "ts" field with the
// write time.
type Log struct {
	mu   sync.Mutex
	path string
	now  domain.Clock
}

// NewLog creates the parent directory if needed.
func NewLog(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit: create dir for %s: %w", path, err)
	}
	return &Log{path: path, now: time.Now}, nil
}

// Append writes one record as a JSON line.
func (l *Log) Append(record map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := make(map[string]any, len(record)+1)
	for key, value := range record {
		entry[key] = value
	}
	entry["ts"] = l.now().UTC().Format(time.RFC3339Nano)

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: encode record: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", l.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write %s: %w", l.path, err)
	}
	return nil
}
