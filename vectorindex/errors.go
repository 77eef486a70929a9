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

package vectorindex

import "errors"

var (
	// ErrNotInitialized indicates an operation before Init or LoadIndex.
	ErrNotInitialized = errors.New("vector index not initialized")

	// ErrTextRequired indicates a text-native index was queried without text.
	ErrTextRequired = errors.New("query text required")

	// ErrVectorRequired indicates a vector index was queried without a vector.
	ErrVectorRequired = errors.New("query vector required")

	// ErrCorruptSnapshot indicates an index file could not be decoded.
	ErrCorruptSnapshot = errors.New("corrupt index snapshot")

	// ErrRemoteUnavailable indicates the remote index rejected or failed a request.
	ErrRemoteUnavailable = errors.New("remote index unavailable")
)
