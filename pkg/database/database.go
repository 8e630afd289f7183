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

// Package database ties the block device, bitmap allocator, page
// accessor, root table, and every open user table into a single
// openable and closable handle, and implements the file header that
// bootstraps a fresh database on first open.
package database

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/clarkok/cdb/pkg/bitmap"
	"github.com/clarkok/cdb/pkg/block"
	"github.com/clarkok/cdb/pkg/cdberrors"
	"github.com/clarkok/cdb/pkg/dbconfig"
	"github.com/clarkok/cdb/pkg/pagecache"
	"github.com/clarkok/cdb/pkg/roottable"
	"github.com/clarkok/cdb/pkg/schema"
	"github.com/clarkok/cdb/pkg/sqlparser"
	"github.com/clarkok/cdb/pkg/table"
)

// magic identifies a valid database file at block 0.
var magic = [8]byte{'-', '-', 'C', 'D', 'B', '-', '-', 0}

// allocatorStart is the block the bitmap allocator's own count block
// occupies; blocks 0 (the header) and 1 (the count block) are
// permanently reserved.
const allocatorStart block.Index = 1

// Database is an open handle on a single backing file: every table
// it knows about, the root table recording them, and the storage
// stack underneath.
type Database struct {
	dev   *block.Device
	alloc *bitmap.Allocator
	acc   pagecache.Accessor
	root  *roottable.RootTable

	tables map[string]*table.Table
	// indexOwner maps an index name to the table it belongs to, so
	// IndexFor and DropIndex don't need to scan every table.
	indexOwner map[string]string
}

// Open opens (bootstrapping on first run) the database described by
// cfg.
func Open(cfg *dbconfig.Config) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dev, err := block.Open(cfg.Path)
	if err != nil {
		return nil, err
	}
	alloc, err := bitmap.Open(dev, allocatorStart)
	if err != nil {
		return nil, err
	}
	var acc pagecache.Accessor
	if cfg.CachedAccessor {
		acc = pagecache.NewCachedAccessor(dev, cfg.CacheLines)
	} else {
		acc = pagecache.NewBasicAccessor(dev)
	}

	db := &Database{
		dev:        dev,
		alloc:      alloc,
		acc:        acc,
		tables:     make(map[string]*table.Table),
		indexOwner: make(map[string]string),
	}

	rootIndex, rootCount, err := db.readHeader()
	if err != nil {
		return nil, err
	}
	if rootIndex == 0 {
		if err := db.bootstrap(); err != nil {
			return nil, err
		}
		return db, nil
	}

	root, err := roottable.Open(acc, alloc, rootIndex, rootCount)
	if err != nil {
		return nil, err
	}
	db.root = root
	if err := db.reconstructTables(); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *Database) readHeader() (rootIndex block.Index, rootCount int64, err error) {
	page, err := db.acc.Acquire(0)
	if err != nil {
		return 0, 0, err
	}
	defer page.ReleaseClean()

	buf := page.Bytes()
	if !bytes.Equal(buf[0:8], magic[:]) {
		return 0, 0, nil
	}
	rootIndex = block.Index(binary.LittleEndian.Uint32(buf[8:12]))
	rootCount = int64(binary.LittleEndian.Uint32(buf[12:16]))
	return rootIndex, rootCount, nil
}

func (db *Database) writeHeader() error {
	page, err := db.acc.Acquire(0)
	if err != nil {
		return err
	}
	buf := page.Bytes()
	copy(buf[0:8], magic[:])
	binary.LittleEndian.PutUint32(buf[8:12], uint32(db.root.Root()))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(db.root.Count()))
	return page.ReleaseDirty()
}

// bootstrap initializes a fresh backing file: resets the allocator,
// allocates the root table's first block, and writes the header.
func (db *Database) bootstrap() error {
	if err := db.alloc.Reset(); err != nil {
		return err
	}
	root, err := roottable.Open(db.acc, db.alloc, 0, 0)
	if err != nil {
		return err
	}
	db.root = root
	return db.writeHeader()
}

// reconstructTables reads the root table's rows and reopens every
// user table and every secondary index tree they reference.
func (db *Database) reconstructTables() error {
	tableRows, indexRows, err := db.root.Load()
	if err != nil {
		return err
	}

	indexesByTable := make(map[string][]table.Index)
	for _, row := range indexRows {
		indexesByTable[row.TableName] = append(indexesByTable[row.TableName], table.Index{
			ColumnName: row.ColumnName,
			Root:       row.DataRoot,
			Name:       row.Name,
		})
		db.indexOwner[row.Name] = row.TableName
	}

	for _, row := range tableRows {
		s, err := sqlparser.ParseSchema(row.CreateSQL)
		if err != nil {
			return err
		}
		tbl, err := table.Open(db.acc, db.alloc, row.Name, s, row.DataRoot, row.Count, indexesByTable[row.Name])
		if err != nil {
			return err
		}
		db.tables[row.Name] = tbl
	}
	return nil
}

// CreateTable allocates and opens a new, empty table.
func (db *Database) CreateTable(name string, s *schema.Schema) (*table.Table, error) {
	if _, exists := db.tables[name]; exists {
		return nil, cdberrors.NewSchemaMisuse("table already exists: " + name)
	}
	tbl, err := table.Open(db.acc, db.alloc, name, s, 0, 0, nil)
	if err != nil {
		return nil, err
	}
	if err := tbl.Reset(); err != nil {
		return nil, err
	}
	db.tables[name] = tbl
	return tbl, nil
}

// GetTable returns the named open table.
func (db *Database) GetTable(name string) (*table.Table, error) {
	tbl, ok := db.tables[name]
	if !ok {
		return nil, cdberrors.NewNotFound("table", name)
	}
	return tbl, nil
}

// DropTable frees a table's storage (primary tree, every secondary
// index tree) and removes it from the database.
func (db *Database) DropTable(name string) error {
	tbl, err := db.GetTable(name)
	if err != nil {
		return err
	}
	for _, idx := range tbl.Indexes() {
		delete(db.indexOwner, idx.Name)
	}
	if err := tbl.Destroy(); err != nil {
		return err
	}
	delete(db.tables, name)
	return nil
}

// IndexFor returns the name of the table owning the secondary index
// named name.
func (db *Database) IndexFor(name string) (string, error) {
	owner, ok := db.indexOwner[name]
	if !ok {
		return "", cdberrors.NewNotFound("index", name)
	}
	return owner, nil
}

// CreateIndex creates a secondary index on table tableName and
// updates the database's index bookkeeping.
func (db *Database) CreateIndex(tableName, columnName, indexName string) error {
	tbl, err := db.GetTable(tableName)
	if err != nil {
		return err
	}
	if _, err := tbl.CreateIndex(columnName, indexName); err != nil {
		return err
	}
	db.indexOwner[indexName] = tableName
	return nil
}

// DropIndex drops a secondary index by name, resolving its owning
// table through IndexFor.
func (db *Database) DropIndex(indexName string) error {
	tableName, err := db.IndexFor(indexName)
	if err != nil {
		return err
	}
	tbl, err := db.GetTable(tableName)
	if err != nil {
		return err
	}
	if err := tbl.DropIndex(indexName); err != nil {
		return err
	}
	delete(db.indexOwner, indexName)
	return nil
}

// Close rewrites the root table from the current set of open tables
// and indexes, flushes every layer of the storage stack, and closes
// the backing file.
func (db *Database) Close() error {
	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	sort.Strings(names)

	var tableRows []roottable.TableRow
	var indexRows []roottable.IndexRow
	for _, name := range names {
		tbl := db.tables[name]
		tableRows = append(tableRows, roottable.TableRow{
			Name:      tbl.Name(),
			DataRoot:  tbl.Root(),
			Count:     tbl.Count(),
			CreateSQL: sqlparser.FormatSchema(tbl.Schema()),
		})
		for _, idx := range tbl.Indexes() {
			indexRows = append(indexRows, roottable.IndexRow{
				Name:       idx.Name,
				DataRoot:   idx.Root,
				TableName:  tbl.Name(),
				ColumnName: idx.ColumnName,
			})
		}
	}

	if err := db.root.Rebuild(tableRows, indexRows); err != nil {
		return err
	}
	if err := db.writeHeader(); err != nil {
		return err
	}
	if err := db.alloc.Flush(); err != nil {
		return err
	}
	if err := db.acc.Flush(); err != nil {
		return err
	}
	return db.dev.Close()
}
