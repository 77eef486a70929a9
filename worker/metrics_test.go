package worker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/lorekeeper/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsLog_AppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "metrics.jsonl")
	log, err := NewMetricsLog(path)
	require.NoError(t, err)

	recs, err := log.Read()
	require.NoError(t, err)
	assert.Empty(t, recs)

	require.NoError(t, log.Append(core.MetricsRecord{TS: 100, Processed: 2, Failures: 1, PID: 9, DurationMs: 15}))
	require.NoError(t, log.Append(core.MetricsRecord{TS: 101, Processed: 0, Failures: 3, PID: 9}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `{"ts":100,"processed":2,"failures":1,"pid":9,"duration_ms":15}`, lines[0])

	recs, err = log.Read()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 3, recs[1].Failures)
}

func TestMetricsLog_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"ts\":1}\nnot json\n"), 0644))
	log, err := NewMetricsLog(path)
	require.NoError(t, err)

	_, err = log.Read()
	assert.ErrorContains(t, err, "line 2")
}

func TestNewMetricsLog_RequiresPath(t *testing.T) {
	_, err := NewMetricsLog("")
	assert.ErrorIs(t, err, ErrMetricsPathRequired)
}
