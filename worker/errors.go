package worker

import "errors"

var (
	// ErrQueueRequired is returned when a queue repository is not provided.
	ErrQueueRequired = errors.New("queue repository required")

	// ErrMetricsPathRequired is returned when a metrics log has no path.
	ErrMetricsPathRequired = errors.New("metrics path required")
)
