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
	"github.com/clarkok/cdb/pkg/btree"
	"github.com/clarkok/cdb/pkg/schema"
)

// IndexView wraps a B+ tree. Two shapes exist: the table's own
// primary tree, keyed by the primary field with the full record as
// value, and a secondary index, keyed by indexed-field-joined-with-
// primary-field with an empty value. For a secondary index, the
// "row" a caller sees through Value is the key itself, since that's
// where both the indexed column and the primary key actually live.
type IndexView struct {
	tree      *btree.Tree
	rowSchema *schema.Schema
	secondary bool
}

// NewPrimaryIndexView wraps tree as a table's own primary storage:
// keys are primary field values, values are full records laid out
// per rowSchema.
func NewPrimaryIndexView(tree *btree.Tree, rowSchema *schema.Schema) *IndexView {
	return &IndexView{tree: tree, rowSchema: rowSchema}
}

// NewSecondaryIndexView wraps tree as a secondary index: keys are
// (indexed field, primary field) pairs laid out per keySchema, values
// are unused. Rows surfaced through Value are the keys themselves.
func NewSecondaryIndexView(tree *btree.Tree, keySchema *schema.Schema) *IndexView {
	return &IndexView{tree: tree, rowSchema: keySchema, secondary: true}
}

func (v *IndexView) Schema() *schema.Schema { return v.rowSchema }

func (v *IndexView) rowOf(it *btree.Iterator) []byte {
	if v.secondary {
		return it.Key()
	}
	return it.Value()
}

func (v *IndexView) Begin() (Iterator, error) {
	it, err := v.tree.Begin()
	if err != nil {
		return nil, err
	}
	return indexIterator{it: it, v: v}, nil
}

func (v *IndexView) End() Iterator {
	return indexIterator{it: v.tree.End(), v: v}
}

func (v *IndexView) LowerBound(key []byte) (Iterator, error) {
	it, err := v.tree.LowerBound(key)
	if err != nil {
		return nil, err
	}
	return indexIterator{it: it, v: v}, nil
}

func (v *IndexView) UpperBound(key []byte) (Iterator, error) {
	it, err := v.tree.UpperBound(key)
	if err != nil {
		return nil, err
	}
	return indexIterator{it: it, v: v}, nil
}

func (v *IndexView) Find(key []byte) ([]byte, bool, error) {
	value, found, err := v.tree.Find(key)
	if err != nil || !found {
		return nil, found, err
	}
	if v.secondary {
		return key, true, nil
	}
	return value, true, nil
}

// indexIterator adapts *btree.Iterator, substituting the key itself
// as the yielded row for a secondary index view.
type indexIterator struct {
	it *btree.Iterator
	v  *IndexView
}

func (i indexIterator) Valid() bool   { return i.it.Valid() }
func (i indexIterator) Key() []byte   { return i.it.Key() }
func (i indexIterator) Value() []byte { return i.v.rowOf(i.it) }
func (i indexIterator) Next() error   { return i.it.Next() }
func (i indexIterator) Close() error  { return i.it.CloseClean() }
