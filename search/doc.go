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


// Package search fuses candidates from several retrieval sources into one
// ranked list.
//
// Each Source yields raw knowledge items. The Engine scores every candidate
// with a base score for its source kind plus bonuses for the query appearing
// in the item title, content, or keywords, penalizes thin snippets, clamps
// the result to [0,1], drops duplicate ids and sorts by score.
//
// Two sources are provided: LexicalSource over the knowledge repository's
// text search and VectorSource over the ANN retriever.
package search
