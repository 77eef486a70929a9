package answer

import "errors"

var (
	// ErrFusionRequired is returned when an orchestrator is built without a fusion engine.
	ErrFusionRequired = errors.New("fusion engine required")

	// ErrNoCompleter is reported in the answer text when escalation is needed
	// but no completer is configured.
	ErrNoCompleter = errors.New("no completer configured")
)
