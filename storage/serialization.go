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


package storage

import (
	"fmt"
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/lorekeeper/core"
)

// MarshalItem serializes a KnowledgeItem to bytes.
func MarshalItem(item *core.KnowledgeItem) []byte {
	size := varint.Int64.Size(item.ID) +
		ord.String.Size(item.Title) +
		ord.String.Size(item.Content) +
		ord.String.Size(item.Source) +
		varint.Int.Size(item.Page) +
		ord.String.Size(item.Category) +
		SizeStrings(item.Keywords)
	buf := make([]byte, size)
	n := varint.Int64.Marshal(item.ID, buf)
	n += ord.String.Marshal(item.Title, buf[n:])
	n += ord.String.Marshal(item.Content, buf[n:])
	n += ord.String.Marshal(item.Source, buf[n:])
	n += varint.Int.Marshal(item.Page, buf[n:])
	n += ord.String.Marshal(item.Category, buf[n:])
	MarshalStrings(item.Keywords, buf[n:])
	return buf
}

// UnmarshalItem deserializes a KnowledgeItem from bytes.
func UnmarshalItem(data []byte) (*core.KnowledgeItem, error) {
	d := decoder{bs: data}
	item := &core.KnowledgeItem{
		ID:       d.int64(),
		Title:    d.string(),
		Content:  d.string(),
		Source:   d.string(),
		Page:     d.int(),
		Category: d.string(),
		Keywords: d.strings(),
	}
	if d.err != nil {
		return nil, fmt.Errorf("%w: knowledge item: %w", ErrSerializationFailed, d.err)
	}
	return item, nil
}

// MarshalRequest serializes an EmbeddingRequest to bytes.
// EnqueuedAt is stored with microsecond precision.
func MarshalRequest(req *core.EmbeddingRequest) []byte {
	ts := req.EnqueuedAt.UnixMicro()
	size := ord.String.Size(req.ID) + ord.String.Size(req.Content) + varint.Int64.Size(ts)
	buf := make([]byte, size)
	n := ord.String.Marshal(req.ID, buf)
	n += ord.String.Marshal(req.Content, buf[n:])
	varint.Int64.Marshal(ts, buf[n:])
	return buf
}

// UnmarshalRequest deserializes an EmbeddingRequest from bytes.
func UnmarshalRequest(data []byte) (*core.EmbeddingRequest, error) {
	d := decoder{bs: data}
	req := &core.EmbeddingRequest{
		ID:      d.string(),
		Content: d.string(),
	}
	req.EnqueuedAt = time.UnixMicro(d.int64()).UTC()
	if d.err != nil {
		return nil, fmt.Errorf("%w: embedding request: %w", ErrSerializationFailed, d.err)
	}
	return req, nil
}

// MarshalVector serializes a vector to bytes.
func MarshalVector(v []float32) []byte {
	buf := make([]byte, SizeFloats(v))
	MarshalFloats(v, buf)
	return buf
}

// UnmarshalVector deserializes a vector from bytes.
func UnmarshalVector(data []byte) ([]float32, error) {
	d := decoder{bs: data}
	v := d.floats()
	if d.err != nil {
		return nil, fmt.Errorf("%w: vector: %w", ErrSerializationFailed, d.err)
	}
	return v, nil
}

// SizeFloats returns the encoded size of a length-prefixed float32 slice.
func SizeFloats(v []float32) int {
	size := varint.Int.Size(len(v))
	for _, f := range v {
		size += varint.Uint32.Size(math.Float32bits(f))
	}
	return size
}

// MarshalFloats writes a length-prefixed float32 slice into buf and
// returns the number of bytes written.
func MarshalFloats(v []float32, buf []byte) int {
	n := varint.Int.Marshal(len(v), buf)
	for _, f := range v {
		n += varint.Uint32.Marshal(math.Float32bits(f), buf[n:])
	}
	return n
}

// UnmarshalFloats reads a length-prefixed float32 slice and returns it with
// the number of bytes consumed.
func UnmarshalFloats(bs []byte) ([]float32, int, error) {
	d := decoder{bs: bs}
	v := d.floats()
	return v, d.n, d.err
}

// SizeStrings returns the encoded size of a length-prefixed string slice.
func SizeStrings(v []string) int {
	size := varint.Int.Size(len(v))
	for _, s := range v {
		size += ord.String.Size(s)
	}
	return size
}

// MarshalStrings writes a length-prefixed string slice into buf.
func MarshalStrings(v []string, buf []byte) int {
	n := varint.Int.Marshal(len(v), buf)
	for _, s := range v {
		n += ord.String.Marshal(s, buf[n:])
	}
	return n
}

// decoder walks a mus-encoded buffer, remembering the first error.
// Once err is set every read returns a zero value.
type decoder struct {
	bs  []byte
	n   int
	err error
}

func (d *decoder) int64() int64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) int() int {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

// length reads a slice length and checks it against the remaining bytes.
// Every element takes at least one byte.
func (d *decoder) length() int {
	l := d.int()
	if d.err != nil {
		return 0
	}
	if l < 0 || l > len(d.bs)-d.n {
		d.err = ErrTruncatedData
		return 0
	}
	return l
}

func (d *decoder) strings() []string {
	l := d.length()
	if d.err != nil || l == 0 {
		return nil
	}
	v := make([]string, l)
	for i := range v {
		v[i] = d.string()
	}
	if d.err != nil {
		return nil
	}
	return v
}

func (d *decoder) floats() []float32 {
	l := d.length()
	if d.err != nil {
		return nil
	}
	v := make([]float32, l)
	for i := range v {
		if d.err != nil {
			return nil
		}
		bits, n, err := varint.Uint32.Unmarshal(d.bs[d.n:])
		d.n += n
		d.err = err
		v[i] = math.Float32frombits(bits)
	}
	if d.err != nil {
		return nil
	}
	return v
}
