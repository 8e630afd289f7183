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

// Package table implements the query engine: a Table owns a schema,
// its primary B+ tree, and zero or more secondary indexes, and
// provides insert/select/erase plus index management on top of the
// view and condition packages.
package table

import (
	"github.com/clarkok/cdb/pkg/bitmap"
	"github.com/clarkok/cdb/pkg/block"
	"github.com/clarkok/cdb/pkg/btree"
	"github.com/clarkok/cdb/pkg/cdberrors"
	"github.com/clarkok/cdb/pkg/condition"
	"github.com/clarkok/cdb/pkg/pagecache"
	"github.com/clarkok/cdb/pkg/schema"
	"github.com/clarkok/cdb/pkg/view"
)

const blockSize = 1024

// Index describes one secondary index's persisted identity.
type Index struct {
	ColumnName string
	Root       block.Index
	Name       string
}

type indexHandle struct {
	Index
	tree      *btree.Tree
	keySchema *schema.Schema
	colOff    int
	colSize   int
	priOff    int
	priSize   int
}

// Table is an open table: its schema, primary storage, and indexes.
type Table struct {
	acc    pagecache.Accessor
	alloc  *bitmap.Allocator
	name   string
	schema *schema.Schema

	primary *btree.Tree
	indexes []*indexHandle

	count int64

	// nextID is the auto-increment cursor for an INTEGER primary
	// column, lazily seeded from the current maximum primary key the
	// first time it's needed. Tracking it separately from count means
	// a row erased and then re-inserted never reuses an id still held
	// by a surviving row.
	nextID     int64
	nextIDInit bool
}

// Open wraps an existing table's primary tree (rooted at root) and
// secondary indexes.
func Open(acc pagecache.Accessor, alloc *bitmap.Allocator, name string, s *schema.Schema, root block.Index, count int64, indexes []Index) (*Table, error) {
	primaryField, _ := s.PrimaryField()
	tr, err := btree.New(acc, alloc, s.Less(), s.Equal(), primaryField.Size(), s.RecordSize(), root)
	if err != nil {
		return nil, err
	}
	t := &Table{acc: acc, alloc: alloc, name: name, schema: s, primary: tr, count: count}
	for _, idx := range indexes {
		h, err := t.openIndex(idx)
		if err != nil {
			return nil, err
		}
		t.indexes = append(t.indexes, h)
	}
	return t, nil
}

// Reset destroys the table's existing primary storage (if any) and
// allocates a fresh empty primary tree, used the first time a table
// is created.
func (t *Table) Reset() error {
	t.nextID = 0
	t.nextIDInit = true
	return t.primary.Reset()
}

// Destroy frees every block the table owns, including every
// secondary index and the primary tree itself, leaving nothing
// behind to reopen. Used when a table is dropped for good, as
// opposed to Reset which keeps the table alive but empty.
func (t *Table) Destroy() error {
	for _, h := range t.indexes {
		if err := h.tree.Destroy(); err != nil {
			return err
		}
	}
	t.indexes = nil
	return t.primary.Destroy()
}

func (t *Table) indexKeySchema(columnName string) (*schema.Schema, error) {
	f, _, err := t.schema.Column(columnName)
	if err != nil {
		return nil, err
	}
	primaryField, _ := t.schema.PrimaryField()
	return &schema.Schema{Fields: []schema.Field{f, primaryField}, Primary: 0}, nil
}

func (t *Table) openIndex(idx Index) (*indexHandle, error) {
	keySchema, err := t.indexKeySchema(idx.ColumnName)
	if err != nil {
		return nil, err
	}
	tr, err := btree.New(t.acc, t.alloc, keySchema.Less(), keySchema.Equal(), keySchema.RecordSize(), 0, idx.Root)
	if err != nil {
		return nil, err
	}
	colField, colOff, _ := t.schema.Column(idx.ColumnName)
	priField, priOff := t.schema.PrimaryField()
	return &indexHandle{
		Index:     idx,
		tree:      tr,
		keySchema: keySchema,
		colOff:    colOff,
		colSize:   colField.Size(),
		priOff:    priOff,
		priSize:   priField.Size(),
	}, nil
}

// Name returns the table's name.
func (t *Table) Name() string { return t.name }

// Schema returns the table's row schema.
func (t *Table) Schema() *schema.Schema { return t.schema }

// Root returns the primary tree's current root block, to persist in
// the root table.
func (t *Table) Root() block.Index { return t.primary.Root() }

// Count returns the number of rows currently stored.
func (t *Table) Count() int64 { return t.count }

// Indexes returns the table's secondary index descriptors.
func (t *Table) Indexes() []Index {
	out := make([]Index, len(t.indexes))
	for i, h := range t.indexes {
		out[i] = h.Index
		out[i].Root = h.tree.Root()
	}
	return out
}

func (t *Table) recordsPerBlock() int64 {
	n := int64(blockSize / t.schema.RecordSize())
	if n == 0 {
		n = 1
	}
	return n
}

// threshold is the estimated-result-count cutoff below which using a
// secondary index beats a full scan.
func (t *Table) threshold() int64 {
	return t.count / t.recordsPerBlock()
}

func (t *Table) indexFor(columnName string) *indexHandle {
	for _, h := range t.indexes {
		if h.ColumnName == columnName {
			return h
		}
	}
	return nil
}

// ensureNextID seeds the auto-increment cursor, once, from the
// current maximum primary key in the tree. Safe to call repeatedly;
// every call after the first is a no-op.
func (t *Table) ensureNextID() error {
	if t.nextIDInit {
		return nil
	}
	t.nextIDInit = true

	primaryField, _ := t.schema.PrimaryField()
	if primaryField.Type != schema.Integer {
		return nil
	}
	return t.primary.ForEachReverse(func(key, _ []byte) (bool, error) {
		literal, err := schema.ToString(schema.Integer, key)
		if err != nil {
			return false, err
		}
		t.nextID = atoi(literal)
		return false, nil
	})
}

// Insert copies each row (laid out per sourceSchema) into the
// table's own layout field-by-field by name, assigns an
// auto-increment primary value when sourceSchema omits the primary
// column and the primary field is INTEGER, inserts into the primary
// tree, and maintains every secondary index.
func (t *Table) Insert(sourceSchema *schema.Schema, rows [][]byte) error {
	primaryField, primaryOff := t.schema.PrimaryField()
	_, hasPrimaryInSource := columnIndex(sourceSchema, primaryField.Name)

	if !hasPrimaryInSource {
		if err := t.ensureNextID(); err != nil {
			return err
		}
	}

	for _, row := range rows {
		record := make([]byte, t.schema.RecordSize())
		for _, f := range t.schema.Fields {
			sf, sOff, err := sourceSchema.Column(f.Name)
			if err != nil {
				continue
			}
			_, off, _ := t.schema.Column(f.Name)
			if sf.Size() != f.Size() {
				return cdberrors.NewSchemaMisuse("column type mismatch on insert: " + f.Name)
			}
			copy(record[off:off+f.Size()], row[sOff:sOff+sf.Size()])
		}

		if !hasPrimaryInSource {
			if primaryField.Type != schema.Integer {
				return cdberrors.NewSchemaMisuse("primary column missing and not auto-incrementable: " + primaryField.Name)
			}
			t.nextID++
			buf, err := schema.FromString(schema.Integer, 0, itoa(t.nextID))
			if err != nil {
				return err
			}
			copy(record[primaryOff:primaryOff+primaryField.Size()], buf)
		}

		primaryKey := record[primaryOff : primaryOff+primaryField.Size()]
		it, err := t.primary.Insert(primaryKey)
		if err != nil {
			return err
		}
		copy(it.Value(), record)
		it.MarkDirty()
		if err := it.CloseDirty(); err != nil {
			return err
		}

		for _, h := range t.indexes {
			key := make([]byte, h.colSize+h.priSize)
			copy(key[:h.colSize], record[h.colOff:h.colOff+h.colSize])
			copy(key[h.colSize:], record[h.priOff:h.priOff+h.priSize])
			iit, err := h.tree.Insert(key)
			if err != nil {
				return err
			}
			iit.MarkDirty()
			if err := iit.CloseDirty(); err != nil {
				return err
			}
		}

		t.count++
	}
	return nil
}

func columnIndex(s *schema.Schema, name string) (int, bool) {
	for i, f := range s.Fields {
		if f.Name == name {
			return i, true
		}
	}
	return 0, false
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

func (t *Table) dataView() *view.IndexView {
	return view.NewPrimaryIndexView(t.primary, t.schema)
}

// Select evaluates cond (nil selects every row) against the table,
// projecting each matching row to targetSchema (nil keeps the
// table's own layout) and invoking sink for each.
func (t *Table) Select(targetSchema *schema.Schema, cond condition.Expr, sink func(record []byte) error) error {
	if targetSchema == nil {
		targetSchema = t.schema
	}
	if cond == nil {
		return t.fullScan(targetSchema, nil, sink)
	}

	optimized, _ := condition.Optimize(cond, t.schema)
	if _, isFalse := optimized.(condition.False); isFalse {
		return nil
	}

	filter := func(record []byte) (bool, error) {
		return condition.Evaluate(optimized, t.schema, record)
	}

	if h, lower, upper, ok := t.pickIndex(optimized); ok {
		begin, end, err := h.rangeIterators(lower, upper)
		if err != nil {
			return err
		}
		out, err := view.SelectIndexed(t.dataView(), targetSchema, begin, end, viewFilter(filter))
		if err != nil {
			return err
		}
		return emit(out, sink)
	}

	return t.fullScan(targetSchema, filter, sink)
}

func viewFilter(f func([]byte) (bool, error)) view.Filter {
	if f == nil {
		return nil
	}
	return view.Filter(f)
}

func (t *Table) fullScan(targetSchema *schema.Schema, filter func([]byte) (bool, error), sink func([]byte) error) error {
	out, err := view.Select(t.dataView(), targetSchema, viewFilter(filter))
	if err != nil {
		return err
	}
	return emit(out, sink)
}

func emit(out *view.SkipView, sink func([]byte) error) error {
	it, err := out.Begin()
	if err != nil {
		return err
	}
	for it.Valid() {
		if err := sink(it.Value()); err != nil {
			it.Close()
			return err
		}
		if err := it.Next(); err != nil {
			it.Close()
			return err
		}
	}
	return it.Close()
}

// pickIndex finds a usable secondary index for optimized (a top-level
// Range or equality Compare over an indexed column) and uses it
// whenever one exists. No result-count estimate is made and
// threshold is not consulted.
func (t *Table) pickIndex(optimized condition.Expr) (h *indexHandle, lower, upper []byte, ok bool) {
	var col, lowLit, upLit string
	switch e := optimized.(type) {
	case *condition.Range:
		col, lowLit, upLit = e.Column, e.Lower, e.Upper
	case *condition.Compare:
		if e.Op != condition.EQ {
			return nil, nil, nil, false
		}
		col, lowLit, upLit = e.Column, e.Literal, e.Literal
	default:
		return nil, nil, nil, false
	}

	handle := t.indexFor(col)
	if handle == nil {
		return nil, nil, nil, false
	}

	f, _, err := t.schema.Column(col)
	if err != nil {
		return nil, nil, nil, false
	}
	lowBuf, err := schema.FromString(f.Type, f.Length, lowLit)
	if err != nil {
		return nil, nil, nil, false
	}
	upBuf, err := schema.FromString(f.Type, f.Length, upLit)
	if err != nil {
		return nil, nil, nil, false
	}
	if _, isCompare := optimized.(*condition.Compare); isCompare {
		upBuf, err = schema.Next(f.Type, f.Length, upBuf)
		if err != nil {
			return nil, nil, nil, false
		}
	}

	return handle, lowBuf, upBuf, true
}

// rangeIterators returns begin/end iterators, over this index's
// entries whose indexed column lies in [lower, upper), yielding just
// the primary-key suffix of each composite key.
func (h *indexHandle) rangeIterators(lower, upper []byte) (view.Iterator, view.Iterator, error) {
	lowKey := append(append([]byte{}, lower...), schema.MinLimit(h.priFieldType(), h.priSize)...)
	upKey := append(append([]byte{}, upper...), schema.MinLimit(h.priFieldType(), h.priSize)...)

	beginIt, err := h.tree.LowerBound(lowKey)
	if err != nil {
		return nil, nil, err
	}
	endIt, err := h.tree.LowerBound(upKey)
	if err != nil {
		return nil, nil, err
	}
	return suffixIterator{it: beginIt, off: h.colSize}, suffixIterator{it: endIt, off: h.colSize}, nil
}

func (h *indexHandle) priFieldType() schema.Type {
	return h.keySchema.Fields[1].Type
}

// suffixIterator adapts a btree.Iterator over composite
// (indexed ∥ primary) keys to expose only the primary-key suffix via
// Key(), as select_indexed expects.
type suffixIterator struct {
	it  *btree.Iterator
	off int
}

func (s suffixIterator) Valid() bool   { return s.it.Valid() }
func (s suffixIterator) Key() []byte   { return s.it.Key()[s.off:] }
func (s suffixIterator) Value() []byte { return s.it.Key() }
func (s suffixIterator) Next() error   { return s.it.Next() }
func (s suffixIterator) Close() error  { return s.it.CloseClean() }

// Erase removes every row matching cond (nil erases everything),
// including their secondary index entries, and returns the number of
// rows removed.
func (t *Table) Erase(cond condition.Expr) (int64, error) {
	if cond == nil {
		removed := t.count
		if err := t.primary.Reset(); err != nil {
			return 0, err
		}
		for _, h := range t.indexes {
			if err := h.tree.Reset(); err != nil {
				return 0, err
			}
		}
		t.count = 0
		return removed, nil
	}

	optimized, _ := condition.Optimize(cond, t.schema)
	if _, isFalse := optimized.(condition.False); isFalse {
		return 0, nil
	}

	primaryField, _ := t.schema.PrimaryField()
	keySchema := &schema.Schema{Fields: []schema.Field{primaryField}, Primary: 0}

	filter := func(record []byte) (bool, error) {
		return condition.Evaluate(optimized, t.schema, record)
	}

	var keys *view.SkipView
	var err error
	if h, lower, upper, ok := t.pickIndex(optimized); ok {
		begin, end, rErr := h.rangeIterators(lower, upper)
		if rErr != nil {
			return 0, rErr
		}
		keys, err = view.SelectIndexed(t.dataView(), keySchema, begin, end, viewFilter(filter))
	} else {
		keys, err = view.Select(t.dataView(), keySchema, viewFilter(filter))
	}
	if err != nil {
		return 0, err
	}

	var removed int64
	it, err := keys.Begin()
	if err != nil {
		return 0, err
	}
	for it.Valid() {
		primaryKey := append([]byte{}, it.Value()[:primaryField.Size()]...)
		record, found, err := t.primary.Find(primaryKey)
		if err != nil {
			it.Close()
			return removed, err
		}
		if found {
			for _, h := range t.indexes {
				key := make([]byte, h.colSize+h.priSize)
				copy(key[:h.colSize], record[h.colOff:h.colOff+h.colSize])
				copy(key[h.colSize:], record[h.priOff:h.priOff+h.priSize])
				if _, err := h.tree.Erase(key); err != nil {
					it.Close()
					return removed, err
				}
			}
			if _, err := t.primary.Erase(primaryKey); err != nil {
				it.Close()
				return removed, err
			}
			t.count--
			removed++
		}
		if err := it.Next(); err != nil {
			it.Close()
			return removed, err
		}
	}
	return removed, it.Close()
}

// CreateIndex allocates a new secondary index tree over columnName,
// backfills it from every existing row, and registers it under name.
func (t *Table) CreateIndex(columnName, name string) (block.Index, error) {
	if t.indexFor(columnName) != nil {
		return 0, cdberrors.NewSchemaMisuse("index already exists on column: " + columnName)
	}
	keySchema, err := t.indexKeySchema(columnName)
	if err != nil {
		return 0, err
	}
	tr, err := btree.New(t.acc, t.alloc, keySchema.Less(), keySchema.Equal(), keySchema.RecordSize(), 0, 0)
	if err != nil {
		return 0, err
	}
	if err := tr.Reset(); err != nil {
		return 0, err
	}

	colField, colOff, _ := t.schema.Column(columnName)
	priField, priOff := t.schema.PrimaryField()

	if err := t.primary.ForEach(func(_, record []byte) (bool, error) {
		key := make([]byte, colField.Size()+priField.Size())
		copy(key[:colField.Size()], record[colOff:colOff+colField.Size()])
		copy(key[colField.Size():], record[priOff:priOff+priField.Size()])
		it, err := tr.Insert(key)
		if err != nil {
			return false, err
		}
		it.MarkDirty()
		return true, it.CloseDirty()
	}); err != nil {
		return 0, err
	}

	h := &indexHandle{
		Index:     Index{ColumnName: columnName, Root: tr.Root(), Name: name},
		tree:      tr,
		keySchema: keySchema,
		colOff:    colOff,
		colSize:   colField.Size(),
		priOff:    priOff,
		priSize:   priField.Size(),
	}
	t.indexes = append(t.indexes, h)
	return tr.Root(), nil
}

// DropIndex frees every block of the named index and removes it.
func (t *Table) DropIndex(name string) error {
	for i, h := range t.indexes {
		if h.Name == name {
			if err := h.tree.Destroy(); err != nil {
				return err
			}
			t.indexes = append(t.indexes[:i], t.indexes[i+1:]...)
			return nil
		}
	}
	return cdberrors.NewSchemaMisuse("index not found: " + name)
}
