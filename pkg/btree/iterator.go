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

package btree

import "github.com/clarkok/cdb/pkg/pagecache"

// Iterator is a bidirectional cursor over a leaf chain. The zero
// value with page == nil represents End().
type Iterator struct {
	tree  *Tree
	page  *pagecache.Page
	pos   int
	dirty bool
}

// Valid reports whether the iterator refers to a real entry.
func (it *Iterator) Valid() bool { return it.page != nil }

// Key returns the current entry's key. Only valid while Valid().
func (it *Iterator) Key() []byte {
	return it.tree.leafEntryKey(it.tree.leafEntry(it.page.Bytes(), it.pos))
}

// Value returns the current entry's mutable value slice.
func (it *Iterator) Value() []byte {
	return it.tree.leafEntryValue(it.tree.leafEntry(it.page.Bytes(), it.pos))
}

// MarkDirty flags the iterator's currently held leaf page as modified
// so it is released dirty when the iterator advances or closes.
func (it *Iterator) MarkDirty() { it.dirty = true }

func (it *Iterator) releaseCurrent() error {
	if it.page == nil {
		return nil
	}
	var err error
	if it.dirty {
		err = it.page.ReleaseDirty()
	} else {
		err = it.page.ReleaseClean()
	}
	it.page = nil
	it.dirty = false
	return err
}

// Next advances to the next entry in ascending key order, crossing
// into the sibling leaf when the current leaf is exhausted. Advancing
// past the last entry reaches End().
func (it *Iterator) Next() error {
	if it.page == nil {
		return nil
	}
	t := it.tree
	h := readHeader(it.page.Bytes())
	if it.pos+1 < int(h.entryCount) {
		it.pos++
		return nil
	}
	if it.page.Index() == t.lastLeaf() {
		return it.releaseCurrent()
	}
	next, err := t.acc.Acquire(h.next)
	if err != nil {
		return err
	}
	if err := it.releaseCurrent(); err != nil {
		next.ReleaseClean()
		return err
	}
	it.page = next
	it.pos = 0
	return nil
}

// Prev moves to the previous entry in ascending key order.
func (it *Iterator) Prev() error {
	t := it.tree
	if it.page == nil {
		// Prev from End() lands on the last entry of the last leaf.
		p, err := t.acc.Acquire(t.lastLeaf())
		if err != nil {
			return err
		}
		h := readHeader(p.Bytes())
		if h.entryCount == 0 {
			return p.ReleaseClean()
		}
		it.page = p
		it.pos = int(h.entryCount) - 1
		return nil
	}
	if it.pos > 0 {
		it.pos--
		return nil
	}
	h := readHeader(it.page.Bytes())
	if h.prev == 0 || it.page.Index() == t.firstLeaf() {
		return it.releaseCurrent()
	}
	prev, err := t.acc.Acquire(h.prev)
	if err != nil {
		return err
	}
	prevHeader := readHeader(prev.Bytes())
	if err := it.releaseCurrent(); err != nil {
		prev.ReleaseClean()
		return err
	}
	it.page = prev
	it.pos = int(prevHeader.entryCount) - 1
	return nil
}

// CloseClean releases the iterator's held page, honoring any pending
// MarkDirty from the caller.
func (it *Iterator) CloseClean() error {
	return it.releaseCurrent()
}

// CloseDirty releases the iterator's held page, marking it dirty.
func (it *Iterator) CloseDirty() error {
	if it.page == nil {
		return nil
	}
	p := it.page
	it.page = nil
	it.dirty = false
	return p.ReleaseDirty()
}
