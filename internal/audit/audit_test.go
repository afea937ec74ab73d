package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "events.jsonl")
	log, err := NewLog(path)
	require.NoError(t, err)

	require.NoError(t, log.Append(map[string]any{"event": "execution", "market_id": "m1"}))
	require.NoError(t, log.Append(map[string]any{"event": "skip", "reason": "duplicate"}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var record map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		records = append(records, record)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, records, 2)
	assert.Equal(t, "execution", records[0]["event"])
	assert.Equal(t, "duplicate", records[1]["reason"])
	assert.NotEmpty(t, records[0]["ts"])
}
