package core

// Outcome is the explicit result of a background run.
// Schedulers use it to decide whether to re-invoke the run later.
type Outcome int

const (
	// OutcomeSuccess means the run finished; nothing to retry.
	OutcomeSuccess Outcome = iota
	// OutcomeRetry means a transient failure; the run should be re-invoked with backoff.
	OutcomeRetry
	// OutcomeFailure means a permanent failure (e.g. missing configuration); retrying will not help.
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}
