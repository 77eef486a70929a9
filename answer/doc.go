// Package answer turns a question into a QueryResult.
//
// The Orchestrator asks the fusion engine for local material first. When
// enough local results exist, or the AI endpoint is unreachable, the answer
// is assembled from local content alone. Otherwise the local content is
// handed to an ai.Completer as reference text and the completion becomes
// the answer. Completion failures never surface as errors; they become the
// answer text instead.
package answer
