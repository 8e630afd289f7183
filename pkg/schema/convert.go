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
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/clarkok/cdb/pkg/cdberrors"
)

// FromString parses literal into the fixed-width encoding for a
// field of the given type and length. CHAR(n) literals must fit in
// n-1 bytes, the last byte reserved as a NUL terminator. TEXT is
// declared but never implemented by this codec: every literal is
// rejected, matching the upstream engine this was distilled from,
// which never finished wiring up its indirection store.
func FromString(t Type, length int, literal string) ([]byte, error) {
	switch t {
	case Integer:
		n, err := strconv.ParseInt(literal, 10, 32)
		if err != nil {
			return nil, cdberrors.NewTypeMismatch(literal, "not a valid integer")
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(int32(n)))
		return buf, nil
	case Float:
		f, err := strconv.ParseFloat(literal, 32)
		if err != nil {
			return nil, cdberrors.NewTypeMismatch(literal, "not a valid float")
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(f)))
		return buf, nil
	case Char:
		if len(literal) >= length {
			return nil, cdberrors.NewTypeMismatch(literal, fmt.Sprintf("exceeds CHAR(%d)", length))
		}
		buf := make([]byte, length)
		copy(buf, literal)
		return buf, nil
	case Text:
		return nil, cdberrors.NewTypeMismatch(literal, "TEXT literals are not supported")
	default:
		return nil, cdberrors.NewTypeMismatch(literal, "unknown field type")
	}
}

// ToString renders value (exactly Size() bytes of it) back to its
// literal form.
func ToString(t Type, value []byte) (string, error) {
	switch t {
	case Integer:
		return strconv.FormatInt(int64(int32(binary.BigEndian.Uint32(value))), 10), nil
	case Float:
		f := math.Float32frombits(binary.BigEndian.Uint32(value))
		return strconv.FormatFloat(float64(f), 'g', -1, 32), nil
	case Char:
		n := strings.IndexByte(string(value), 0)
		if n < 0 {
			n = len(value)
		}
		return string(value[:n]), nil
	case Text:
		return "", cdberrors.NewTypeMismatch("TEXT", "TEXT values are not supported")
	default:
		return "", cdberrors.NewTypeMismatch("", "unknown field type")
	}
}

// Next returns the immediate successor of value in the type's ordered
// domain: INTEGER is value+1, FLOAT is the next representable float
// toward +Inf (via math.Nextafter, not the original naive orig+1.0
// step which silently stalls once orig+1.0 rounds back to orig at
// large magnitudes), CHAR is the lexicographic successor.
func Next(t Type, length int, value []byte) ([]byte, error) {
	switch t {
	case Integer:
		n := int32(binary.BigEndian.Uint32(value))
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(n+1))
		return buf, nil
	case Float:
		f := math.Float32frombits(binary.BigEndian.Uint32(value))
		next := float32(math.Nextafter(float64(f), math.Inf(1)))
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, math.Float32bits(next))
		return buf, nil
	case Char:
		return charStep(value, length, true)
	default:
		return nil, cdberrors.NewTypeMismatch("", "type has no successor")
	}
}

// Prev is Next's mirror: INTEGER is value-1, FLOAT steps toward -Inf,
// CHAR is the lexicographic predecessor.
func Prev(t Type, length int, value []byte) ([]byte, error) {
	switch t {
	case Integer:
		n := int32(binary.BigEndian.Uint32(value))
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(n-1))
		return buf, nil
	case Float:
		f := math.Float32frombits(binary.BigEndian.Uint32(value))
		prev := float32(math.Nextafter(float64(f), math.Inf(-1)))
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, math.Float32bits(prev))
		return buf, nil
	case Char:
		return charStep(value, length, false)
	default:
		return nil, cdberrors.NewTypeMismatch("", "type has no predecessor")
	}
}

// charStep implements CHAR next/prev by treating the NUL-terminated
// string as a base-256 number and incrementing or decrementing its
// least significant byte, carrying into earlier bytes on overflow; a
// byte that overflows wraps to 0x01, the smallest non-NUL byte, since
// 0x00 would end the string. Incrementing past 0xff in the first byte position needs a free NUL
// slot to grow into and fails if the field has none; decrementing an
// empty string has no predecessor.
func charStep(value []byte, length int, up bool) ([]byte, error) {
	n := strings.IndexByte(string(value), 0)
	if n < 0 {
		n = len(value)
	}
	out := append([]byte(nil), value...)

	if up {
		i := n - 1
		for i >= 0 && out[i] == 0xff {
			out[i] = 1
			i--
		}
		if i >= 0 {
			out[i]++
			return out, nil
		}
		if n+1 >= length {
			return nil, cdberrors.NewTypeMismatch(string(value[:n]), "no successor fits in the field width")
		}
		out[n] = 1
		out[n+1] = 0
		return out, nil
	}

	if n == 0 {
		return nil, cdberrors.NewTypeMismatch("", "empty string has no predecessor")
	}
	out[n-1]--
	return out, nil
}

// MinLimit returns the smallest value representable by the type,
// used to build a half-open range with no effective lower bound.
func MinLimit(t Type, length int) []byte {
	switch t {
	case Integer:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(int32(math.MinInt32)))
		return buf
	case Float:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(math.Inf(-1))))
		return buf
	case Char:
		return make([]byte, length)
	default:
		return make([]byte, length)
	}
}

// MaxLimit returns the largest value representable by the type, used
// to build a range with no effective upper bound.
func MaxLimit(t Type, length int) []byte {
	switch t {
	case Integer:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(int32(math.MaxInt32)))
		return buf
	case Float:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(math.Inf(1))))
		return buf
	case Char:
		buf := make([]byte, length)
		for i := range buf {
			buf[i] = 0xff
		}
		return buf
	default:
		buf := make([]byte, length)
		for i := range buf {
			buf[i] = 0xff
		}
		return buf
	}
}
