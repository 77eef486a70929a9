package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// CLIBackend runs a local script once per batch.
// The script is invoked as "<interpreter> <script> <batch-file>" and must
// print the results JSON on stdout.
type CLIBackend struct {
	interpreter string
	script      string
	tempDir     string
	logger      *slog.Logger
}

var _ Backend = (*CLIBackend)(nil)

// CLIOption configures a CLIBackend.
type CLIOption func(*CLIBackend)

// WithTempDir sets where batch files are written. Defaults to os.TempDir.
func WithTempDir(dir string) CLIOption {
	return func(b *CLIBackend) {
		b.tempDir = dir
	}
}

// WithCLILogger sets the logger.
func WithCLILogger(logger *slog.Logger) CLIOption {
	return func(b *CLIBackend) {
		b.logger = logger
	}
}

// NewCLIBackend creates a backend running script with interpreter.
func NewCLIBackend(interpreter, script string, opts ...CLIOption) (*CLIBackend, error) {
	if interpreter == "" || script == "" {
		return nil, fmt.Errorf("%w: interpreter and script paths are required", ErrNotConfigured)
	}
	b := &CLIBackend{
		interpreter: interpreter,
		script:      script,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "embedding-cli")
	return b, nil
}

// Embed writes items to a temporary file, runs the script on it and parses
// stdout. The temporary file is always removed.
func (b *CLIBackend) Embed(ctx context.Context, items []Item) (map[string][]float32, error) {
	path, err := b.writeBatch(items)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBatchFailed, err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			b.logger.Warn("failed to remove batch file", "path", path, "err", err)
		}
	}()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, b.interpreter, b.script, path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %w: %s", ErrBatchFailed, err, bytes.TrimSpace(stderr.Bytes()))
	}

	vectors, err := parseResults(stdout.Bytes(), b.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBatchFailed, err)
	}
	b.logger.Debug("embedded batch", "requested", len(items), "returned", len(vectors))
	return vectors, nil
}

func (b *CLIBackend) writeBatch(items []Item) (string, error) {
	f, err := os.CreateTemp(b.tempDir, "embed-batch-*.json")
	if err != nil {
		return "", err
	}
	if err := json.NewEncoder(f).Encode(items); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
