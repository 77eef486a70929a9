// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ai provides abstractions for AI services used in lorekeeper.
//
// This package defines interfaces for the two model-backed operations the
// assistant needs, so retrieval and answering code depend on abstractions
// rather than concrete clients:
//
//   - Embedder: turns query text into a vector for nearest-neighbor search
//   - Completer: answers a question from a chat model, given reference text
//   - AIProvider: aggregates both for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: langchaingo clients for OpenAI-compatible APIs
//   - ai/mock: deterministic test doubles
//
// The stream package provides a second Completer that speaks the
// server-sent-events chat protocol directly.
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, openai.NewEmbedder, etc.) return
// interface types. Test constructors (mock.NewMockEmbedder,
// mock.NewMockCompleter) return concrete types so tests can inspect call
// counts and inject behavior.
//
// # Configuration
//
//	cfg := ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"),
//	    ai.WithCompletionModel("qwen2.5:3b"),
//	)
//	provider, err := openai.NewProvider(cfg)
package ai
