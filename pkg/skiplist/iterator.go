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

// Iterator walks a List's records in ascending order. The zero value
// is not usable; obtain one from List's Begin/End/LowerBound/
// UpperBound/Insert/Erase methods.
type Iterator struct {
	list *List
	cur  *node
}

// Valid reports whether the iterator refers to a live record.
func (it *Iterator) Valid() bool { return it.cur != nil }

// Value returns the current record. Panics if !Valid().
func (it *Iterator) Value() []byte {
	if it.cur == nil {
		panic("skiplist: Value called on invalid iterator")
	}
	return it.cur.value
}

// Next advances the iterator to the following record.
func (it *Iterator) Next() {
	if it.cur == nil {
		return
	}
	it.cur = it.cur.forward[0]
}
