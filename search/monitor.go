package search

import (
	"log/slog"
	"time"
)

// Monitor observes fusion calls. Every call to Engine.Search produces one
// Start and one Finish.
type Monitor interface {
	Start(query string)
	Finish(query string, count int, elapsed time.Duration)
}

// logMonitor reports fusion calls through slog.
type logMonitor struct {
	logger *slog.Logger
}

var _ Monitor = (*logMonitor)(nil)

func (m *logMonitor) Start(query string) {
	m.logger.Debug("fusion started", "query", query)
}

func (m *logMonitor) Finish(query string, count int, elapsed time.Duration) {
	m.logger.Info("fusion finished", "query", query, "results", count, "elapsed", elapsed)
}

// noopMonitor discards events.
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (noopMonitor) Start(_ string)                         {}
func (noopMonitor) Finish(_ string, _ int, _ time.Duration) {}
