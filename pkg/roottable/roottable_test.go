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

package roottable

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clarkok/cdb/pkg/bitmap"
	"github.com/clarkok/cdb/pkg/block"
	"github.com/clarkok/cdb/pkg/pagecache"
)

func newRootTable(t *testing.T) *RootTable {
	t.Helper()
	dev, err := block.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	alloc, err := bitmap.Open(dev, 1)
	require.NoError(t, err)
	require.NoError(t, alloc.Reset())
	acc := pagecache.NewBasicAccessor(dev)

	rt, err := Open(acc, alloc, 0, 0)
	require.NoError(t, err)
	return rt
}

func TestRebuildThenLoadRoundTrips(t *testing.T) {
	rt := newRootTable(t)

	tables := []TableRow{
		{Name: "users", DataRoot: 5, Count: 3, CreateSQL: "id INT,age INT,name CHAR(16)"},
		{Name: "orders", DataRoot: 9, Count: 0, CreateSQL: "id INT,total INT"},
	}
	indexes := []IndexRow{
		{Name: "idx_age", DataRoot: 12, TableName: "users", ColumnName: "age"},
	}

	require.NoError(t, rt.Rebuild(tables, indexes))
	require.Equal(t, int64(3), rt.Count())

	loadedTables, loadedIndexes, err := rt.Load()
	require.NoError(t, err)
	require.Len(t, loadedTables, 2)
	require.Len(t, loadedIndexes, 1)

	byName := map[string]TableRow{}
	for _, row := range loadedTables {
		byName[row.Name] = row
	}
	require.Equal(t, block.Index(5), byName["users"].DataRoot)
	require.Equal(t, int64(3), byName["users"].Count)
	require.Equal(t, "id INT,age INT,name CHAR(16)", byName["users"].CreateSQL)

	require.Equal(t, "idx_age", loadedIndexes[0].Name)
	require.Equal(t, "users", loadedIndexes[0].TableName)
	require.Equal(t, "age", loadedIndexes[0].ColumnName)
	require.Equal(t, block.Index(12), loadedIndexes[0].DataRoot)
}

func TestRebuildReplacesPriorContents(t *testing.T) {
	rt := newRootTable(t)
	require.NoError(t, rt.Rebuild([]TableRow{{Name: "a", DataRoot: 1, Count: 0, CreateSQL: "x"}}, nil))
	require.NoError(t, rt.Rebuild([]TableRow{{Name: "b", DataRoot: 2, Count: 0, CreateSQL: "y"}}, nil))

	loadedTables, loadedIndexes, err := rt.Load()
	require.NoError(t, err)
	require.Len(t, loadedIndexes, 0)
	require.Len(t, loadedTables, 1)
	require.Equal(t, "b", loadedTables[0].Name)
}

func TestOpenEmptyRootTable(t *testing.T) {
	rt := newRootTable(t)
	require.Equal(t, int64(0), rt.Count())
	tables, indexes, err := rt.Load()
	require.NoError(t, err)
	require.Empty(t, tables)
	require.Empty(t, indexes)
}
