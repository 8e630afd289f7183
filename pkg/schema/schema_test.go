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
	"testing"

	"github.com/stretchr/testify/require"
)

func testSchema() *Schema {
	return &Schema{
		Fields: []Field{
			{Name: "id", Type: Integer},
			{Name: "name", Type: Char, Length: 16},
			{Name: "score", Type: Float},
		},
		Primary: 0,
	}
}

func TestRecordSizeAndOffsets(t *testing.T) {
	s := testSchema()
	require.Equal(t, 4+16+4, s.RecordSize())

	off, err := s.Offset("name")
	require.NoError(t, err)
	require.Equal(t, 4, off)

	off, err = s.Offset("score")
	require.NoError(t, err)
	require.Equal(t, 20, off)

	_, err = s.Offset("nope")
	require.Error(t, err)
}

func TestProject(t *testing.T) {
	s := testSchema()
	target := &Schema{Fields: []Field{{Name: "score", Type: Float}, {Name: "id", Type: Integer}}}

	id, err := FromString(Integer, 0, "7")
	require.NoError(t, err)
	name, err := FromString(Char, 16, "alice")
	require.NoError(t, err)
	score, err := FromString(Float, 0, "9.5")
	require.NoError(t, err)

	record := append(append(append([]byte{}, id...), name...), score...)

	projected, err := Project(s, target, record)
	require.NoError(t, err)
	require.Equal(t, score, projected[0:4])
	require.Equal(t, id, projected[4:8])
}

func TestIntegerRoundTrip(t *testing.T) {
	for _, lit := range []string{"0", "-1", "2147483647", "-2147483648"} {
		buf, err := FromString(Integer, 0, lit)
		require.NoError(t, err)
		back, err := ToString(Integer, buf)
		require.NoError(t, err)
		require.Equal(t, lit, back)
	}
	_, err := FromString(Integer, 0, "not-a-number")
	require.Error(t, err)
}

func TestIntegerNextPrev(t *testing.T) {
	buf, err := FromString(Integer, 0, "41")
	require.NoError(t, err)
	next, err := Next(Integer, 0, buf)
	require.NoError(t, err)
	s, err := ToString(Integer, next)
	require.NoError(t, err)
	require.Equal(t, "42", s)

	prev, err := Prev(Integer, 0, buf)
	require.NoError(t, err)
	s, err = ToString(Integer, prev)
	require.NoError(t, err)
	require.Equal(t, "40", s)
}

func TestFloatNextPrevMovesByOneULP(t *testing.T) {
	buf, err := FromString(Float, 0, "1.5")
	require.NoError(t, err)
	next, err := Next(Float, 0, buf)
	require.NoError(t, err)
	require.True(t, LessFuncForType(Float)(buf, next))

	prev, err := Prev(Float, 0, buf)
	require.NoError(t, err)
	require.True(t, LessFuncForType(Float)(prev, buf))

	// A very large magnitude float must still step, unlike the
	// original's orig+1.0 approach which stalls once the increment
	// rounds back to the same representable value.
	big, err := FromString(Float, 0, "123456790.0")
	require.NoError(t, err)
	bigNext, err := Next(Float, 0, big)
	require.NoError(t, err)
	require.True(t, LessFuncForType(Float)(big, bigNext))
}

func TestCharFromStringPadsWithNUL(t *testing.T) {
	buf, err := FromString(Char, 8, "ab")
	require.NoError(t, err)
	require.Len(t, buf, 8)
	require.Equal(t, byte('a'), buf[0])
	require.Equal(t, byte('b'), buf[1])
	require.Equal(t, byte(0), buf[2])

	s, err := ToString(Char, buf)
	require.NoError(t, err)
	require.Equal(t, "ab", s)

	_, err = FromString(Char, 4, "abcd")
	require.Error(t, err)
}

func TestCharNextPrev(t *testing.T) {
	buf, err := FromString(Char, 8, "ab")
	require.NoError(t, err)

	next, err := Next(Char, 8, buf)
	require.NoError(t, err)
	s, err := ToString(Char, next)
	require.NoError(t, err)
	require.Equal(t, "ac", s)

	prev, err := Prev(Char, 8, buf)
	require.NoError(t, err)
	s, err = ToString(Char, prev)
	require.NoError(t, err)
	require.Equal(t, "aa", s)

	overflow, err := FromString(Char, 8, "a\xff")
	require.NoError(t, err)
	grown, err := Next(Char, 8, overflow)
	require.NoError(t, err)
	require.Equal(t, byte('b'), grown[0])
	require.Equal(t, byte(1), grown[1])

	_, err = Prev(Char, 8, FieldMust(FromString(Char, 8, "")))
	require.Error(t, err)
}

// FieldMust is a tiny test helper unwrapping (value, error) pairs
// where the error is known to be nil by construction.
func FieldMust(buf []byte, err error) []byte {
	if err != nil {
		panic(err)
	}
	return buf
}

func TestTextIsRejected(t *testing.T) {
	_, err := FromString(Text, 0, "anything")
	require.Error(t, err)
}

func TestCombinedLessOrdersByFieldsThenTiebreak(t *testing.T) {
	fields := []Field{{Name: "a", Type: Integer}, {Name: "b", Type: Integer}}
	less := CombinedLess(fields)

	a1, _ := FromString(Integer, 0, "1")
	a2, _ := FromString(Integer, 0, "2")
	b1, _ := FromString(Integer, 0, "1")
	b2, _ := FromString(Integer, 0, "2")

	require.True(t, less(append(append([]byte{}, a1...), b2...), append(append([]byte{}, a2...), b1...)))
	require.False(t, less(append(append([]byte{}, a1...), b1...), append(append([]byte{}, a1...), b1...)))
	require.True(t, less(append(append([]byte{}, a1...), b1...), append(append([]byte{}, a1...), b2...)))
}

func TestMinMaxLimitsBoundEverything(t *testing.T) {
	for _, typ := range []Type{Integer, Float, Char} {
		length := 8
		lo := MinLimit(typ, length)
		hi := MaxLimit(typ, length)
		less := LessFuncForType(typ)
		require.True(t, less(lo, hi))
	}
}
