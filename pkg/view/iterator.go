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

// Package view unifies the on-disk B+ tree and the in-memory skip
// list behind one iterator interface, and implements the row
// composition operations (select, peek, intersect, join) that the
// query engine drives.
package view

import "github.com/clarkok/cdb/pkg/skiplist"

// Iterator is the uniform cursor every view kind exposes: a forward
// walk over (key, value) pairs in ascending key order.
type Iterator interface {
	Valid() bool
	Key() []byte
	Value() []byte
	Next() error
	Close() error
}

// skipIterator adapts *skiplist.Iterator to Iterator. Skip list
// records hold no external resource, so Close is a no-op and Next
// never fails.
type skipIterator struct {
	it     *skiplist.Iterator
	keyOff int
	keyLen int
}

func (i skipIterator) Valid() bool { return i.it.Valid() }
func (i skipIterator) Key() []byte { return i.it.Value()[i.keyOff : i.keyOff+i.keyLen] }
func (i skipIterator) Value() []byte {
	return i.it.Value()
}
func (i skipIterator) Next() error { i.it.Next(); return nil }
func (i skipIterator) Close() error { return nil }
