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


package search

import "errors"

var (
	// ErrSourceRequired is returned when an engine is built without sources.
	ErrSourceRequired = errors.New("at least one source required")

	// ErrRepositoryRequired is returned when a source is built without a knowledge repository.
	ErrRepositoryRequired = errors.New("knowledge repository required")

	// ErrRetrieverRequired is returned when a vector source is built without a retriever.
	ErrRetrieverRequired = errors.New("retriever required")

	// ErrInvalidBaseScore is returned for base scores outside [0,1].
	ErrInvalidBaseScore = errors.New("base score must be within [0,1]")

	// ErrInvalidMinScore is returned for vector score floors outside [0,1].
	ErrInvalidMinScore = errors.New("minimum score must be within [0,1]")
)
