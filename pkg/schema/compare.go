/*
Copyright 2024 The CDB Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package schema

import (
	"bytes"
	"encoding/binary"
	"math"
)

// LessFunc reports whether a orders strictly before b.
type LessFunc func(a, b []byte) bool

// EqualFunc reports whether a and b are the same value.
type EqualFunc func(a, b []byte) bool

// LessFuncForType returns the semantic less-than comparator for t:
// INTEGER and FLOAT compare as native numbers rather than raw bytes,
// so this works directly on two's-complement and IEEE-754 encodings
// without needing an order-preserving byte transform. CHAR and TEXT
// fall back to a straight byte comparison, equivalent to strcmp.
func LessFuncForType(t Type) LessFunc {
	switch t {
	case Integer:
		return func(a, b []byte) bool {
			return int32(binary.BigEndian.Uint32(a)) < int32(binary.BigEndian.Uint32(b))
		}
	case Float:
		return func(a, b []byte) bool {
			fa := math.Float32frombits(binary.BigEndian.Uint32(a))
			fb := math.Float32frombits(binary.BigEndian.Uint32(b))
			return fa < fb
		}
	default:
		return func(a, b []byte) bool { return bytes.Compare(a, b) < 0 }
	}
}

// EqualFuncForType returns the semantic equality comparator for t,
// mirroring LessFuncForType's per-type dispatch.
func EqualFuncForType(t Type) EqualFunc {
	switch t {
	case Integer:
		return func(a, b []byte) bool {
			return binary.BigEndian.Uint32(a) == binary.BigEndian.Uint32(b)
		}
	case Float:
		return func(a, b []byte) bool {
			fa := math.Float32frombits(binary.BigEndian.Uint32(a))
			fb := math.Float32frombits(binary.BigEndian.Uint32(b))
			return fa == fb
		}
	default:
		return bytes.Equal
	}
}

// Less returns the comparator for the schema's primary key: records
// are ordered by their primary field alone.
func (s *Schema) Less() LessFunc {
	f, off := s.PrimaryField()
	cmp := LessFuncForType(f.Type)
	size := f.Size()
	return func(a, b []byte) bool {
		return cmp(a[off:off+size], b[off:off+size])
	}
}

// Equal returns the equality function for the schema's primary key.
func (s *Schema) Equal() EqualFunc {
	f, off := s.PrimaryField()
	cmp := EqualFuncForType(f.Type)
	size := f.Size()
	return func(a, b []byte) bool {
		return cmp(a[off:off+size], b[off:off+size])
	}
}

// CombinedLess builds a composite comparator over fields, in order:
// it compares by fields[0], breaking ties with fields[1], and so on.
// This is how secondary index keys of the form indexed-value joined
// with primary-key tiebreaker are ordered, so that duplicate indexed
// values still produce a strict total order.
func CombinedLess(fields []Field) LessFunc {
	type segment struct {
		off, size int
		less      LessFunc
		equal     EqualFunc
	}
	offset := 0
	segs := make([]segment, len(fields))
	for i, f := range fields {
		segs[i] = segment{
			off:   offset,
			size:  f.Size(),
			less:  LessFuncForType(f.Type),
			equal: EqualFuncForType(f.Type),
		}
		offset += f.Size()
	}
	return func(a, b []byte) bool {
		for _, seg := range segs {
			sa := a[seg.off : seg.off+seg.size]
			sb := b[seg.off : seg.off+seg.size]
			if seg.less(sa, sb) {
				return true
			}
			if !seg.equal(sa, sb) {
				return false
			}
		}
		return false
	}
}

// CombinedEqual builds a composite equality function over fields,
// true only when every field segment compares equal.
func CombinedEqual(fields []Field) EqualFunc {
	type segment struct {
		off, size int
		equal     EqualFunc
	}
	offset := 0
	segs := make([]segment, len(fields))
	for i, f := range fields {
		segs[i] = segment{off: offset, size: f.Size(), equal: EqualFuncForType(f.Type)}
		offset += f.Size()
	}
	return func(a, b []byte) bool {
		for _, seg := range segs {
			if !seg.equal(a[seg.off:seg.off+seg.size], b[seg.off:seg.off+seg.size]) {
				return false
			}
		}
		return true
	}
}
