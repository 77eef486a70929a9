package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// DefaultDimension is the embedding width every vector index is pinned to
// unless configured otherwise.
const DefaultDimension = 384

// IDFromContent generates a deterministic item ID from text content using BLAKE2b hashing.
// Identical content produces identical IDs. The sign bit is cleared so IDs stay positive.
func IDFromContent(text string) int64 {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return int64(binary.LittleEndian.Uint64(sum) &^ (1 << 63))
}

// KnowledgeItem is a unit of locally stored reference text.
// Items are created by import collaborators and are read-only to retrieval.
type KnowledgeItem struct {
	ID       int64
	Title    string
	Content  string
	Source   string // Source descriptor, e.g. originating file name
	Page     int    // Page number within the source, 0 when unknown
	Category string
	Keywords []string
}

// EmbeddingRequest is content waiting in the pending queue for a vector.
// ID may alias a KnowledgeItem id rendered as a decimal string.
type EmbeddingRequest struct {
	ID         string
	Content    string
	EnqueuedAt time.Time

	// Seq is the queue's version of this request, assigned on every
	// enqueue. Zero for requests that were not read from a queue.
	Seq uint64
}

// SourceKind identifies where a retrieval candidate came from.
type SourceKind int

const (
	// SourceLexical marks candidates from keyword/substring matching.
	SourceLexical SourceKind = iota + 1
	// SourceVector marks candidates from nearest-neighbor search.
	SourceVector
)

func (k SourceKind) String() string {
	switch k {
	case SourceLexical:
		return "lexical"
	case SourceVector:
		return "vector"
	default:
		return "unknown"
	}
}

// RetrievalResult pairs an item with a relevance score in [0,1].
type RetrievalResult struct {
	Item   KnowledgeItem
	Score  float64
	Origin SourceKind
}

// QueryResult is the final answer handed back for a user question.
type QueryResult struct {
	Answer     string
	References []KnowledgeItem
	Confidence float64
}

// MetricsRecord is one append-only log entry per worker run.
type MetricsRecord struct {
	TS         int64 `json:"ts"`
	Processed  int   `json:"processed"`
	Failures   int   `json:"failures"`
	PID        int   `json:"pid"`
	DurationMs int64 `json:"duration_ms"`
}
