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

package skiplist

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"sort"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"
)

func keyOf(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

func lessBytes(a, b []byte) bool { return bytes.Compare(a, b) < 0 }

func TestInsertAndIterateAscending(t *testing.T) {
	l := New(lessBytes)
	order := rand.New(rand.NewSource(1)).Perm(500)
	for _, n := range order {
		l.Insert(keyOf(uint64(n)))
	}
	require.Equal(t, 500, l.Size())

	var seen []uint64
	for it := l.Begin(); it.Valid(); it.Next() {
		seen = append(seen, binary.BigEndian.Uint64(it.Value()))
	}
	require.Len(t, seen, 500)
	require.True(t, sort.SliceIsSorted(seen, func(i, j int) bool { return seen[i] < seen[j] }))
}

func TestLowerAndUpperBound(t *testing.T) {
	l := New(lessBytes)
	for _, n := range []uint64{10, 20, 30, 40} {
		l.Insert(keyOf(n))
	}

	it := l.LowerBound(keyOf(25))
	require.True(t, it.Valid())
	require.Equal(t, keyOf(30), it.Value())

	it = l.LowerBound(keyOf(20))
	require.True(t, it.Valid())
	require.Equal(t, keyOf(20), it.Value())

	it = l.UpperBound(keyOf(20))
	require.True(t, it.Valid())
	require.Equal(t, keyOf(30), it.Value())

	it = l.LowerBound(keyOf(999))
	require.False(t, it.Valid())
}

func TestEraseRemovesExactRecordAndKeepsOrdering(t *testing.T) {
	l := New(lessBytes)
	const count = 300
	for i := uint64(0); i < count; i++ {
		l.Insert(keyOf(i))
	}
	for i := uint64(0); i < count; i += 3 {
		it := l.LowerBound(keyOf(i))
		require.True(t, it.Valid())
		require.Equal(t, keyOf(i), it.Value())
		l.Erase(it)
	}
	require.Equal(t, count-count/3, l.Size())

	var seen []uint64
	for it := l.Begin(); it.Valid(); it.Next() {
		seen = append(seen, binary.BigEndian.Uint64(it.Value()))
	}
	require.True(t, sort.SliceIsSorted(seen, func(i, j int) bool { return seen[i] < seen[j] }))
	for _, n := range seen {
		require.NotZero(t, n % 3)
	}
}

func TestDuplicateKeysAllowed(t *testing.T) {
	l := New(lessBytes)
	l.Insert(keyOf(5))
	l.Insert(keyOf(5))
	l.Insert(keyOf(5))
	require.Equal(t, 3, l.Size())

	count := 0
	for it := l.Begin(); it.Valid(); it.Next() {
		require.Equal(t, keyOf(5), it.Value())
		count++
	}
	require.Equal(t, 3, count)
}

func TestClearEmptiesList(t *testing.T) {
	l := New(lessBytes)
	for i := uint64(0); i < 50; i++ {
		l.Insert(keyOf(i))
	}
	l.Clear()
	require.Equal(t, 0, l.Size())
	require.False(t, l.Begin().Valid())
}

func TestInsertEraseAgainstReferenceMultiset(t *testing.T) {
	f := func(ops []uint8) bool {
		l := New(lessBytes)
		var ref []uint64
		for _, op := range ops {
			n := uint64(op) % 32
			if op%2 == 0 {
				l.Insert(keyOf(n))
				ref = append(ref, n)
			} else if len(ref) > 0 {
				it := l.LowerBound(keyOf(n))
				if it.Valid() {
					removed := binary.BigEndian.Uint64(it.Value())
					l.Erase(it)
					for i, v := range ref {
						if v == removed {
							ref = append(ref[:i], ref[i+1:]...)
							break
						}
					}
				}
			}
		}
		sort.Slice(ref, func(i, j int) bool { return ref[i] < ref[j] })

		var got []uint64
		for it := l.Begin(); it.Valid(); it.Next() {
			got = append(got, binary.BigEndian.Uint64(it.Value()))
		}
		if len(got) != len(ref) {
			return false
		}
		for i := range got {
			if got[i] != ref[i] {
				return false
			}
		}
		return true
	}
	require.NoError(t, quick.Check(f, &quick.Config{MaxCount: 50}))
}
