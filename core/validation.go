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


package core

import (
	"fmt"
	"strings"
)

// ValidateItem validates a KnowledgeItem according to domain rules.
//
// Validation rules:
//   - Content must not be blank
//
// NOT validated:
//   - ID (0 means "derive from content" for importers)
//   - Keywords, Category, Page (all optional)
func ValidateItem(item *KnowledgeItem) error {
	if item == nil {
		return fmt.Errorf("%w: item is nil", ErrInvalidItem)
	}
	if strings.TrimSpace(item.Content) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidItem, ErrEmptyContent)
	}
	return nil
}

// ValidateRequest checks that an embedding request can be queued.
// Blank content is allowed here; the batch worker drops it.
func ValidateRequest(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, ErrEmptyID)
	}
	return nil
}

// ValidateDimension checks that dim is usable as an index dimension.
func ValidateDimension(dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidDimension, dim)
	}
	return nil
}

// ValidateVector checks that v has exactly dim components.
func ValidateVector(v []float32, dim int) error {
	if len(v) != dim {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dim, len(v))
	}
	return nil
}

// ClampScore bounds a relevance score to [0,1].
func ClampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
