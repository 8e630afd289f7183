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

// Package roottable implements the system table that records every
// user table and secondary index so the engine can reconstruct them
// on open and persist their current roots on close.
package roottable

import (
	"github.com/clarkok/cdb/pkg/bitmap"
	"github.com/clarkok/cdb/pkg/block"
	"github.com/clarkok/cdb/pkg/pagecache"
	"github.com/clarkok/cdb/pkg/schema"
	"github.com/clarkok/cdb/pkg/table"
)

// MaxNameLength bounds a table or index name.
const MaxNameLength = 32

// MaxSQLLength bounds the serialized schema or indexed column name
// stashed in create_sql.
const MaxSQLLength = 256

// TableRow describes one user table entry: index_for is empty and
// create_sql carries the table's serialized schema.
type TableRow struct {
	Name      string
	DataRoot  block.Index
	Count     int64
	CreateSQL string
}

// IndexRow describes one secondary index entry: index_for names the
// owning table and create_sql carries the indexed column's name.
type IndexRow struct {
	Name       string
	DataRoot   block.Index
	TableName  string
	ColumnName string
}

// Schema returns the fixed layout of the root table itself:
// (id INT, name CHAR(32), data INT, count INT, index_for CHAR(32),
// create_sql CHAR(256)).
func Schema() *schema.Schema {
	return &schema.Schema{
		Fields: []schema.Field{
			{Name: "id", Type: schema.Integer},
			{Name: "name", Type: schema.Char, Length: MaxNameLength},
			{Name: "data", Type: schema.Integer},
			{Name: "count", Type: schema.Integer},
			{Name: "index_for", Type: schema.Char, Length: MaxNameLength},
			{Name: "create_sql", Type: schema.Char, Length: MaxSQLLength},
		},
		Primary: 0,
	}
}

// rowSchema is Schema() without the auto-incrementing id column, the
// shape Insert's sourceSchema needs.
func rowSchema() *schema.Schema {
	return &schema.Schema{Fields: Schema().Fields[1:], Primary: 0}
}

// RootTable wraps the system table as an ordinary table.Table. It
// holds no in-memory copy of its rows between calls; Load/Rebuild are
// the only entry points, matching the original's behavior of reading
// every row once at open and rewriting every row once at close.
type RootTable struct {
	tbl *table.Table
}

// Open wraps the root table's own primary tree, rooted at root with
// the given row count. Pass root == 0 to create a fresh, empty root
// table (the first-run bootstrap path).
func Open(acc pagecache.Accessor, alloc *bitmap.Allocator, root block.Index, count int64) (*RootTable, error) {
	tbl, err := table.Open(acc, alloc, "__root__", Schema(), root, count, nil)
	if err != nil {
		return nil, err
	}
	if root == 0 {
		if err := tbl.Reset(); err != nil {
			return nil, err
		}
	}
	return &RootTable{tbl: tbl}, nil
}

// Root returns the root table's own primary tree root block.
func (r *RootTable) Root() block.Index { return r.tbl.Root() }

// Count returns the number of rows (tables + indexes) recorded.
func (r *RootTable) Count() int64 { return r.tbl.Count() }

// Load scans every row, splitting tables (index_for empty) from
// indexes (index_for non-empty).
func (r *RootTable) Load() ([]TableRow, []IndexRow, error) {
	var tables []TableRow
	var indexes []IndexRow
	err := r.tbl.Select(nil, nil, func(record []byte) error {
		name, err := schema.ToString(schema.Char, record[4:4+MaxNameLength])
		if err != nil {
			return err
		}
		off := 4 + MaxNameLength
		dataStr, err := schema.ToString(schema.Integer, record[off:off+4])
		if err != nil {
			return err
		}
		off += 4
		countStr, err := schema.ToString(schema.Integer, record[off:off+4])
		if err != nil {
			return err
		}
		off += 4
		indexFor, err := schema.ToString(schema.Char, record[off:off+MaxNameLength])
		if err != nil {
			return err
		}
		off += MaxNameLength
		sqlField, err := schema.ToString(schema.Char, record[off:off+MaxSQLLength])
		if err != nil {
			return err
		}

		data := atoi(dataStr)
		count := atoi(countStr)
		if indexFor == "" {
			tables = append(tables, TableRow{Name: name, DataRoot: block.Index(data), Count: count, CreateSQL: sqlField})
		} else {
			indexes = append(indexes, IndexRow{Name: name, DataRoot: block.Index(data), TableName: indexFor, ColumnName: sqlField})
		}
		return nil
	})
	return tables, indexes, err
}

// Rebuild clears the root table and rewrites it from tables and
// indexes, assigning fresh auto-incrementing ids in the order given.
// This mirrors the original engine's close() behavior: the root table
// is never updated incrementally, only rewritten in full.
func (r *RootTable) Rebuild(tables []TableRow, indexes []IndexRow) error {
	if _, err := r.tbl.Erase(nil); err != nil {
		return err
	}
	src := rowSchema()
	for _, t := range tables {
		row, err := encodeRow(src, t.Name, int64(t.DataRoot), t.Count, "", t.CreateSQL)
		if err != nil {
			return err
		}
		if err := r.tbl.Insert(src, [][]byte{row}); err != nil {
			return err
		}
	}
	for _, idx := range indexes {
		row, err := encodeRow(src, idx.Name, int64(idx.DataRoot), 0, idx.TableName, idx.ColumnName)
		if err != nil {
			return err
		}
		if err := r.tbl.Insert(src, [][]byte{row}); err != nil {
			return err
		}
	}
	return nil
}

func encodeRow(src *schema.Schema, name string, data, count int64, indexFor, createSQL string) ([]byte, error) {
	row := make([]byte, src.RecordSize())
	nameBuf, err := schema.FromString(schema.Char, MaxNameLength, name)
	if err != nil {
		return nil, err
	}
	dataBuf, err := schema.FromString(schema.Integer, 0, itoa(data))
	if err != nil {
		return nil, err
	}
	countBuf, err := schema.FromString(schema.Integer, 0, itoa(count))
	if err != nil {
		return nil, err
	}
	indexForBuf, err := schema.FromString(schema.Char, MaxNameLength, indexFor)
	if err != nil {
		return nil, err
	}
	sqlBuf, err := schema.FromString(schema.Char, MaxSQLLength, createSQL)
	if err != nil {
		return nil, err
	}
	copy(row[0:MaxNameLength], nameBuf)
	off := MaxNameLength
	copy(row[off:off+4], dataBuf)
	off += 4
	copy(row[off:off+4], countBuf)
	off += 4
	copy(row[off:off+MaxNameLength], indexForBuf)
	off += MaxNameLength
	copy(row[off:off+MaxSQLLength], sqlBuf)
	return row, nil
}

func atoi(s string) int64 {
	var neg bool
	var n int64
	i := 0
	if len(s) > 0 && s[0] == '-' {
		neg = true
		i = 1
	}
	for ; i < len(s); i++ {
		n = n*10 + int64(s[i]-'0')
	}
	if neg {
		n = -n
	}
	return n
}

func itoa(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	if n == 0 {
		return "0"
	}
	var buf [20]byte
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
