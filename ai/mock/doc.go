// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Completer,
// and ai.AIProvider for use in unit tests. The mocks allow tests to run without
// external AI service dependencies and enable controlled, deterministic behavior.
//
// # Usage in Tests
//
//	embedder := mock.NewMockEmbedder()
//	embedder.Dimension = 3
//	vector, err := embedder.EmbedText(ctx, "test")
//
//	completer := mock.NewMockCompleter("answer")
//	completer.Chunks = []string{"ans", "wer"}
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic unit vectors based on text hash
//   - MockCompleter: Returns a fixed answer, optionally in chunks
//   - MockProvider: Aggregates mock embedder and completer
package mock
