// Package ingestion loads knowledge items into the local store and queues
// each one for embedding.
//
// Items arrive either as values or as JSON lines. Each stored item is
// enqueued under its id rendered in decimal, so the batch worker routes the
// resulting vector into the vector index. Malformed lines are skipped and
// counted rather than failing the import.
package ingestion
