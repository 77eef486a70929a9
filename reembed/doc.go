// Package reembed queues every stored knowledge item for embedding again.
//
// Run it after changing the embedding model or the index dimension: items
// are read in batches and re-enqueued under their decimal ids, and the
// batch worker rebuilds their vectors on its next run. Queue writes are
// retried with exponential backoff and progress is written to an io.Writer.
package reembed
