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


// Package storage provides the storage abstraction layer for lorekeeper.
//
// This package defines repository interfaces that decouple storage implementation
// from the embedding pipeline and retrieval code. Three repositories live here:
//
//   - QueueRepository: the durable pending queue of embedding requests
//   - KnowledgeRepository: reference items plus the lexical (substring) search used
//     as a retrieval source
//   - VectorRepository: raw vectors keyed by string, for embeddings whose id does
//     not name a knowledge item
//
// The badger sub-package implements all three on a single BadgerDB instance.
//
// # Serialization
//
// Values are encoded with mus-go primitives (see serialization.go). The same
// float slice encoding is reused by the native vector index snapshot.
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	queue, err := badger.NewQueueRepository(backend)
//
// Use in tests with in-memory storage:
//
//	queue, items, vectors, backend, err := badger.NewMemoryRepositories()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
