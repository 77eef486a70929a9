package embedding

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript creates a shell script in dir and returns its path.
func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "embed.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestCLIBackend_Embed(t *testing.T) {
	sh := requireShell(t)
	scriptDir := t.TempDir()
	batchDir := t.TempDir()
	seen := filepath.Join(scriptDir, "seen.json")
	script := writeScript(t, scriptDir, `cp "$1" "`+seen+`"
echo '{"results":{"a":[1,2],"b":[3,"x"]}}'
`)

	backend, err := NewCLIBackend(sh, script, WithTempDir(batchDir))
	require.NoError(t, err)

	vectors, err := backend.Embed(context.Background(), []Item{{ID: "a", Content: "one"}, {ID: "b", Content: "two"}})
	require.NoError(t, err)
	assert.Equal(t, map[string][]float32{"a": {1, 2}}, vectors)

	data, err := os.ReadFile(seen)
	require.NoError(t, err)
	var batch []Item
	require.NoError(t, json.Unmarshal(data, &batch))
	assert.Equal(t, []Item{{ID: "a", Content: "one"}, {ID: "b", Content: "two"}}, batch)

	entries, err := os.ReadDir(batchDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "batch file should be removed")
}

func TestCLIBackend_NonZeroExit(t *testing.T) {
	sh := requireShell(t)
	scriptDir := t.TempDir()
	batchDir := t.TempDir()
	script := writeScript(t, scriptDir, "echo 'model missing' >&2\nexit 3\n")

	backend, err := NewCLIBackend(sh, script, WithTempDir(batchDir))
	require.NoError(t, err)

	_, err = backend.Embed(context.Background(), []Item{{ID: "a", Content: "one"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBatchFailed)
	assert.Contains(t, err.Error(), "model missing")

	entries, err := os.ReadDir(batchDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "batch file should be removed")
}

func TestCLIBackend_BadOutput(t *testing.T) {
	sh := requireShell(t)
	script := writeScript(t, t.TempDir(), "echo 'loading model...'\n")

	backend, err := NewCLIBackend(sh, script, WithTempDir(t.TempDir()))
	require.NoError(t, err)

	_, err = backend.Embed(context.Background(), []Item{{ID: "a", Content: "one"}})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestNewCLIBackend_RequiresPaths(t *testing.T) {
	_, err := NewCLIBackend("", "embed.py")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewCLIBackend("python3", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
