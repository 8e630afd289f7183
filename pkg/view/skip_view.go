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
	"github.com/clarkok/cdb/pkg/schema"
	"github.com/clarkok/cdb/pkg/skiplist"
)

// SkipView wraps an in-memory skip list of fixed-width records,
// ordered by rowSchema's primary field. Used for materialized
// intermediate results produced by select, peek, and the products of
// intersect/join.
type SkipView struct {
	list      *skiplist.List
	rowSchema *schema.Schema
	keyOff    int
	keyLen    int
}

// NewSkipView builds an empty SkipView ordered by rowSchema's primary
// field.
func NewSkipView(rowSchema *schema.Schema) *SkipView {
	f, off := rowSchema.PrimaryField()
	return &SkipView{
		list:      skiplist.New(rowSchema.Less()),
		rowSchema: rowSchema,
		keyOff:    off,
		keyLen:    f.Size(),
	}
}

func (v *SkipView) Schema() *schema.Schema { return v.rowSchema }

// Insert adds record to the underlying skip list.
func (v *SkipView) Insert(record []byte) {
	v.list.Insert(record)
}

// Size returns the number of records held.
func (v *SkipView) Size() int { return v.list.Size() }

func (v *SkipView) wrap(it *skiplist.Iterator) Iterator {
	return skipIterator{it: it, keyOff: v.keyOff, keyLen: v.keyLen}
}

func (v *SkipView) Begin() (Iterator, error) { return v.wrap(v.list.Begin()), nil }
func (v *SkipView) End() Iterator            { return v.wrap(v.list.End()) }

func (v *SkipView) LowerBound(key []byte) (Iterator, error) {
	return v.wrap(v.list.LowerBound(key)), nil
}

func (v *SkipView) UpperBound(key []byte) (Iterator, error) {
	return v.wrap(v.list.UpperBound(key)), nil
}

func (v *SkipView) Find(key []byte) ([]byte, bool, error) {
	it := v.list.LowerBound(key)
	if !it.Valid() {
		return nil, false, nil
	}
	record := it.Value()
	if !v.rowSchema.Equal()(record[v.keyOff:v.keyOff+v.keyLen], key) {
		return nil, false, nil
	}
	return record, true, nil
}
