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

package view

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clarkok/cdb/pkg/bitmap"
	"github.com/clarkok/cdb/pkg/block"
	"github.com/clarkok/cdb/pkg/btree"
	"github.com/clarkok/cdb/pkg/pagecache"
	"github.com/clarkok/cdb/pkg/schema"
)

func rowSchema() *schema.Schema {
	return &schema.Schema{
		Fields: []schema.Field{
			{Name: "id", Type: schema.Integer},
			{Name: "score", Type: schema.Integer},
		},
		Primary: 0,
	}
}

func newPrimaryTreeView(t *testing.T, rows map[int32]int32) *IndexView {
	t.Helper()
	s := rowSchema()
	dev, err := block.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	alloc, err := bitmap.Open(dev, 1)
	require.NoError(t, err)
	require.NoError(t, alloc.Reset())
	acc := pagecache.NewBasicAccessor(dev)
	tr, err := btree.New(acc, alloc, s.Less(), s.Equal(), 4, s.RecordSize(), 0)
	require.NoError(t, err)
	require.NoError(t, tr.Reset())

	for id, score := range rows {
		idBuf, err := schema.FromString(schema.Integer, 0, itoa(id))
		require.NoError(t, err)
		scoreBuf, err := schema.FromString(schema.Integer, 0, itoa(score))
		require.NoError(t, err)
		it, err := tr.Insert(idBuf)
		require.NoError(t, err)
		copy(it.Value()[:4], idBuf)
		copy(it.Value()[4:8], scoreBuf)
		it.MarkDirty()
		require.NoError(t, it.CloseDirty())
	}
	return NewPrimaryIndexView(tr, s)
}

func itoa(n int32) string {
	neg := n < 0
	if neg {
		n = -n
	}
	if n == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestIndexViewBeginYieldsAscending(t *testing.T) {
	v := newPrimaryTreeView(t, map[int32]int32{3: 30, 1: 10, 2: 20})
	it, err := v.Begin()
	require.NoError(t, err)

	var ids []string
	for it.Valid() {
		str, err := schema.ToString(schema.Integer, it.Value()[:4])
		require.NoError(t, err)
		ids = append(ids, str)
		require.NoError(t, it.Next())
	}
	require.NoError(t, it.Close())
	require.Equal(t, []string{"1", "2", "3"}, ids)
}

func TestSelectProjectsAndFilters(t *testing.T) {
	v := newPrimaryTreeView(t, map[int32]int32{1: 10, 2: 20, 3: 30})
	target := &schema.Schema{Fields: []schema.Field{{Name: "score", Type: schema.Integer}}, Primary: 0}

	out, err := Select(v, target, func(record []byte) (bool, error) {
		s, err := schema.ToString(schema.Integer, record[4:8])
		require.NoError(t, err)
		return s != "20", nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, out.Size())
}

func TestPeekCollectsPrimaryKeysInRange(t *testing.T) {
	v := newPrimaryTreeView(t, map[int32]int32{1: 5, 2: 15, 3: 25, 4: 35})
	lower, err := schema.FromString(schema.Integer, 0, "10")
	require.NoError(t, err)
	upper, err := schema.FromString(schema.Integer, 0, "30")
	require.NoError(t, err)

	out, err := Peek(v, "score", lower, upper)
	require.NoError(t, err)
	require.Equal(t, 2, out.Size())
}

func TestIntersectRetainsOnlyCommonKeys(t *testing.T) {
	keySchema := &schema.Schema{Fields: []schema.Field{{Name: "id", Type: schema.Integer}}, Primary: 0}
	self := NewSkipView(keySchema)
	for _, n := range []string{"1", "2", "3", "4"} {
		k, err := schema.FromString(schema.Integer, 0, n)
		require.NoError(t, err)
		self.Insert(k)
	}

	other := NewSkipView(keySchema)
	for _, n := range []string{"2", "4", "5"} {
		k, err := schema.FromString(schema.Integer, 0, n)
		require.NoError(t, err)
		other.Insert(k)
	}

	begin, err := other.Begin()
	require.NoError(t, err)
	require.NoError(t, Intersect(self, begin, other.End()))
	require.Equal(t, 2, self.Size())
}

func TestJoinProducesOrderedUnion(t *testing.T) {
	keySchema := &schema.Schema{Fields: []schema.Field{{Name: "id", Type: schema.Integer}}, Primary: 0}
	self := NewSkipView(keySchema)
	for _, n := range []string{"1", "3"} {
		k, err := schema.FromString(schema.Integer, 0, n)
		require.NoError(t, err)
		self.Insert(k)
	}

	other := NewSkipView(keySchema)
	for _, n := range []string{"2", "3", "4"} {
		k, err := schema.FromString(schema.Integer, 0, n)
		require.NoError(t, err)
		other.Insert(k)
	}

	begin, err := other.Begin()
	require.NoError(t, err)
	require.NoError(t, Join(self, begin, other.End()))
	require.Equal(t, 4, self.Size())
}
