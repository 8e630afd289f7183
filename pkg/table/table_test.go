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

package table

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clarkok/cdb/pkg/bitmap"
	"github.com/clarkok/cdb/pkg/block"
	"github.com/clarkok/cdb/pkg/condition"
	"github.com/clarkok/cdb/pkg/pagecache"
	"github.com/clarkok/cdb/pkg/schema"
)

func usersSchema() *schema.Schema {
	return &schema.Schema{
		Fields: []schema.Field{
			{Name: "id", Type: schema.Integer},
			{Name: "age", Type: schema.Integer},
			{Name: "name", Type: schema.Char, Length: 16},
		},
		Primary: 0,
	}
}

func newTestTable(t *testing.T) *Table {
	t.Helper()
	dev, err := block.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	alloc, err := bitmap.Open(dev, 1)
	require.NoError(t, err)
	require.NoError(t, alloc.Reset())
	acc := pagecache.NewBasicAccessor(dev)

	tbl, err := Open(acc, alloc, "users", usersSchema(), 0, 0, nil)
	require.NoError(t, err)
	require.NoError(t, tbl.Reset())
	return tbl
}

func buildRow(t *testing.T, s *schema.Schema, id, age int64, name string) []byte {
	t.Helper()
	idBuf, err := schema.FromString(schema.Integer, 0, itoa(id))
	require.NoError(t, err)
	ageBuf, err := schema.FromString(schema.Integer, 0, itoa(age))
	require.NoError(t, err)
	nameBuf, err := schema.FromString(schema.Char, 16, name)
	require.NoError(t, err)
	row := make([]byte, s.RecordSize())
	copy(row[0:4], idBuf)
	copy(row[4:8], ageBuf)
	copy(row[8:24], nameBuf)
	return row
}

func TestInsertAndFullScanSelect(t *testing.T) {
	tbl := newTestTable(t)
	s := usersSchema()
	rows := [][]byte{
		buildRow(t, s, 1, 30, "alice"),
		buildRow(t, s, 2, 25, "bob"),
		buildRow(t, s, 3, 40, "carol"),
	}
	require.NoError(t, tbl.Insert(s, rows))
	require.Equal(t, int64(3), tbl.Count())

	var names []string
	require.NoError(t, tbl.Select(nil, nil, func(record []byte) error {
		name, err := schema.ToString(schema.Char, record[8:24])
		require.NoError(t, err)
		names = append(names, name)
		return nil
	}))
	sort.Strings(names)
	require.Equal(t, []string{"alice", "bob", "carol"}, names)
}

func TestSelectWithConditionFiltersRows(t *testing.T) {
	tbl := newTestTable(t)
	s := usersSchema()
	require.NoError(t, tbl.Insert(s, [][]byte{
		buildRow(t, s, 1, 30, "alice"),
		buildRow(t, s, 2, 25, "bob"),
		buildRow(t, s, 3, 40, "carol"),
	}))

	cond := &condition.Compare{Column: "age", Op: condition.GE, Literal: "30"}
	var names []string
	require.NoError(t, tbl.Select(nil, cond, func(record []byte) error {
		name, err := schema.ToString(schema.Char, record[8:24])
		require.NoError(t, err)
		names = append(names, name)
		return nil
	}))
	sort.Strings(names)
	require.Equal(t, []string{"alice", "carol"}, names)
}

func TestCreateIndexAndSelectUsesIt(t *testing.T) {
	tbl := newTestTable(t)
	s := usersSchema()
	require.NoError(t, tbl.Insert(s, [][]byte{
		buildRow(t, s, 1, 30, "alice"),
		buildRow(t, s, 2, 25, "bob"),
		buildRow(t, s, 3, 40, "carol"),
	}))

	root, err := tbl.CreateIndex("age", "idx_age")
	require.NoError(t, err)
	require.NotZero(t, root)
	require.Len(t, tbl.Indexes(), 1)

	cond := &condition.Compare{Column: "age", Op: condition.EQ, Literal: "25"}
	var names []string
	require.NoError(t, tbl.Select(nil, cond, func(record []byte) error {
		name, err := schema.ToString(schema.Char, record[8:24])
		require.NoError(t, err)
		names = append(names, name)
		return nil
	}))
	require.Equal(t, []string{"bob"}, names)
}

func TestDropIndexRemovesIt(t *testing.T) {
	tbl := newTestTable(t)
	s := usersSchema()
	require.NoError(t, tbl.Insert(s, [][]byte{buildRow(t, s, 1, 30, "alice")}))
	_, err := tbl.CreateIndex("age", "idx_age")
	require.NoError(t, err)
	require.NoError(t, tbl.DropIndex("idx_age"))
	require.Len(t, tbl.Indexes(), 0)

	err = tbl.DropIndex("idx_age")
	require.Error(t, err)
}

func TestEraseWithConditionRemovesMatchingRows(t *testing.T) {
	tbl := newTestTable(t)
	s := usersSchema()
	require.NoError(t, tbl.Insert(s, [][]byte{
		buildRow(t, s, 1, 30, "alice"),
		buildRow(t, s, 2, 25, "bob"),
		buildRow(t, s, 3, 40, "carol"),
	}))

	removed, err := tbl.Erase(&condition.Compare{Column: "age", Op: condition.LT, Literal: "30"})
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
	require.Equal(t, int64(2), tbl.Count())

	var names []string
	require.NoError(t, tbl.Select(nil, nil, func(record []byte) error {
		name, err := schema.ToString(schema.Char, record[8:24])
		require.NoError(t, err)
		names = append(names, name)
		return nil
	}))
	sort.Strings(names)
	require.Equal(t, []string{"alice", "carol"}, names)
}

func TestEraseWithoutConditionClearsTable(t *testing.T) {
	tbl := newTestTable(t)
	s := usersSchema()
	require.NoError(t, tbl.Insert(s, [][]byte{
		buildRow(t, s, 1, 30, "alice"),
		buildRow(t, s, 2, 25, "bob"),
	}))

	removed, err := tbl.Erase(nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)
	require.Equal(t, int64(0), tbl.Count())
}

func TestInsertAutoIncrementsMissingPrimary(t *testing.T) {
	tbl := newTestTable(t)
	partial := &schema.Schema{
		Fields: []schema.Field{
			{Name: "age", Type: schema.Integer},
			{Name: "name", Type: schema.Char, Length: 16},
		},
		Primary: 0,
	}
	ageBuf, err := schema.FromString(schema.Integer, 0, "22")
	require.NoError(t, err)
	nameBuf, err := schema.FromString(schema.Char, 16, "dave")
	require.NoError(t, err)
	row := make([]byte, partial.RecordSize())
	copy(row[0:4], ageBuf)
	copy(row[4:20], nameBuf)

	require.NoError(t, tbl.Insert(partial, [][]byte{row}))
	require.Equal(t, int64(1), tbl.Count())

	var ids []string
	require.NoError(t, tbl.Select(nil, nil, func(record []byte) error {
		id, err := schema.ToString(schema.Integer, record[0:4])
		require.NoError(t, err)
		ids = append(ids, id)
		return nil
	}))
	require.Equal(t, []string{"1"}, ids)
}
