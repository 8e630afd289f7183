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

import (
	"github.com/clarkok/cdb/pkg/block"
	"github.com/clarkok/cdb/pkg/pagecache"
)

// Insert finds or creates the slot for key and returns an iterator
// positioned there together with a mutable value slice for the
// caller to fill. If key is already present, the iterator points at
// the existing entry (no duplicate is created). The caller must
// eventually close the returned iterator; if it wrote into Value()
// it must call MarkDirty before closing.
func (t *Tree) Insert(key []byte) (*Iterator, error) {
	path, err := t.descend(key)
	if err != nil {
		releaseAllClean(path)
		return nil, err
	}

	leafIdx := len(path) - 1
	leaf := path[leafIdx]
	h := readHeader(leaf.Bytes())
	pos := t.findInLeaf(leaf.Bytes(), h, key)

	if pos < int(h.entryCount) && t.equal(t.leafEntryKey(t.leafEntry(leaf.Bytes(), pos)), key) {
		if err := releaseAllClean(path[:leafIdx]); err != nil {
			leaf.ReleaseClean()
			return nil, err
		}
		return &Iterator{tree: t, page: leaf, pos: pos}, nil
	}

	if int(h.entryCount) < t.maxEntriesPerLeaf() {
		t.insertLeafEntryAt(leaf.Bytes(), &h, pos, key)
		if err := releaseAllClean(path[:leafIdx]); err != nil {
			leaf.ReleaseDirty()
			return nil, err
		}
		return &Iterator{tree: t, page: leaf, pos: pos, dirty: true}, nil
	}

	return t.insertWithSplit(path, key)
}

func (t *Tree) insertLeafEntryAt(buf []byte, h *header, pos int, key []byte) {
	sz := t.leafEntrySize()
	n := int(h.entryCount)
	src := buf[leafHeaderSize+pos*sz : leafHeaderSize+n*sz]
	dst := buf[leafHeaderSize+(pos+1)*sz : leafHeaderSize+(n+1)*sz]
	copy(dst, src)
	entry := buf[leafHeaderSize+pos*sz : leafHeaderSize+(pos+1)*sz]
	for i := range entry {
		entry[i] = 0
	}
	t.setLeafEntry(entry, key)
	h.entryCount++
	writeHeader(buf, *h)
}

// splitLeaf carves the upper half of old's entries into a freshly
// allocated leaf, rewires the sibling chain, and updates lastLeafIdx
// if old was the last leaf. It returns the new leaf's page (still
// acquired) and the key promoted to the parent (the new leaf's first key).
func (t *Tree) splitLeaf(old *pagecache.Page) (*pagecache.Page, []byte, error) {
	oldBuf := old.Bytes()
	oldH := readHeader(oldBuf)
	mid := int(oldH.entryCount) / 2
	moved := int(oldH.entryCount) - mid
	sz := t.leafEntrySize()

	newIdx, err := t.alloc.AllocateBlocks(1, old.Index())
	if err != nil {
		return nil, nil, err
	}
	newPage, err := t.acc.Acquire(newIdx)
	if err != nil {
		return nil, nil, err
	}
	newBuf := newPage.Bytes()
	copy(newBuf[leafHeaderSize:leafHeaderSize+moved*sz], oldBuf[leafHeaderSize+mid*sz:leafHeaderSize+int(oldH.entryCount)*sz])

	newH := header{isLeaf: true, entryCount: uint32(moved), prev: old.Index(), next: oldH.next}
	writeHeader(newBuf, newH)

	oldH.entryCount = uint32(mid)
	oldH.next = newIdx
	writeHeader(oldBuf, oldH)

	if newH.next == 0 {
		t.setLastLeaf(newIdx)
	} else {
		nextLeaf, err := t.acc.Acquire(newH.next)
		if err != nil {
			return nil, nil, err
		}
		nh := readHeader(nextLeaf.Bytes())
		nh.prev = newIdx
		writeHeader(nextLeaf.Bytes(), nh)
		if err := nextLeaf.ReleaseDirty(); err != nil {
			return nil, nil, err
		}
	}

	splitKey := append([]byte(nil), t.leafEntryKey(t.leafEntry(newBuf, 0))...)
	return newPage, splitKey, nil
}

// splitNode is splitLeaf's interior-node analogue: entries carry
// child pointers instead of values, and the new node's "before" slot
// is left unused (its separating key was promoted, per the source's
// own comment that this value should never be read back).
func (t *Tree) splitNode(old *pagecache.Page) (*pagecache.Page, []byte, error) {
	oldBuf := old.Bytes()
	oldH := readHeader(oldBuf)
	mid := int(oldH.entryCount) / 2
	moved := int(oldH.entryCount) - mid
	sz := t.nodeEntrySize()

	newIdx, err := t.alloc.AllocateBlocks(1, old.Index())
	if err != nil {
		return nil, nil, err
	}
	newPage, err := t.acc.Acquire(newIdx)
	if err != nil {
		return nil, nil, err
	}
	newBuf := newPage.Bytes()
	copy(newBuf[nodeHeaderSize:nodeHeaderSize+moved*sz], oldBuf[nodeHeaderSize+mid*sz:nodeHeaderSize+int(oldH.entryCount)*sz])

	newH := header{isLeaf: false, entryCount: uint32(moved), prev: old.Index(), next: oldH.next}
	writeHeader(newBuf, newH)
	writeBefore(newBuf, 0)

	splitKey := append([]byte(nil), t.nodeEntryKey(t.nodeEntry(newBuf, 0))...)

	// the promoted entry's key becomes the new node's "before" pointer
	// target instead of a stored entry: shift the rest left by one.
	copy(newBuf[nodeHeaderSize:], newBuf[nodeHeaderSize+sz:nodeHeaderSize+moved*sz])
	newH.entryCount--
	writeHeader(newBuf, newH)
	writeBefore(newBuf, t.nodeEntryChild(t.nodeEntry(oldBuf, mid)))

	oldH.entryCount = uint32(mid)
	oldH.next = newIdx
	writeHeader(oldBuf, oldH)

	if newH.next != 0 {
		nextNode, err := t.acc.Acquire(newH.next)
		if err != nil {
			return nil, nil, err
		}
		nh := readHeader(nextNode.Bytes())
		nh.prev = newIdx
		writeHeader(nextNode.Bytes(), nh)
		if err := nextNode.ReleaseDirty(); err != nil {
			return nil, nil, err
		}
	}

	return newPage, splitKey, nil
}

// insertWithSplit handles the overflow path: split the leaf, insert
// the new key into whichever half it belongs, then walk back up the
// path promoting split keys into ancestors, splitting them in turn
// when they also overflow, finally allocating a new root if the
// split reaches the top.
func (t *Tree) insertWithSplit(path []*pagecache.Page, key []byte) (*Iterator, error) {
	leafIdx := len(path) - 1
	leaf := path[leafIdx]

	newLeaf, splitKey, err := t.splitLeaf(leaf)
	if err != nil {
		return nil, err
	}

	var target *pagecache.Page
	var targetPos int
	if t.less(key, splitKey) {
		target = leaf
		h := readHeader(leaf.Bytes())
		targetPos = t.findInLeaf(leaf.Bytes(), h, key)
		t.insertLeafEntryAt(leaf.Bytes(), &h, targetPos, key)
	} else {
		target = newLeaf
		h := readHeader(newLeaf.Bytes())
		targetPos = t.findInLeaf(newLeaf.Bytes(), h, key)
		t.insertLeafEntryAt(newLeaf.Bytes(), &h, targetPos, key)
	}

	promoteKey := splitKey
	promoteChild := newLeaf.Index()

	if target == leaf {
		if err := newLeaf.ReleaseDirty(); err != nil {
			return nil, err
		}
	} else {
		if err := leaf.ReleaseDirty(); err != nil {
			return nil, err
		}
	}

	for j := leafIdx - 1; j >= 0; j-- {
		parent := path[j]
		ph := readHeader(parent.Bytes())
		ppos := nodeInsertPos(t, parent.Bytes(), ph, promoteKey)

		if int(ph.entryCount) < t.maxEntriesPerNode() {
			insertNodeEntryAt(t, parent.Bytes(), &ph, ppos, promoteKey, promoteChild)
			if err := releaseAllClean(path[:j]); err != nil {
				parent.ReleaseDirty()
				return nil, err
			}
			if err := parent.ReleaseDirty(); err != nil {
				return nil, err
			}
			return &Iterator{tree: t, page: target, pos: targetPos, dirty: true}, nil
		}

		newNode, newSplitKey, err := t.splitNode(parent)
		if err != nil {
			return nil, err
		}

		if t.less(promoteKey, newSplitKey) {
			h2 := readHeader(parent.Bytes())
			pos2 := nodeInsertPos(t, parent.Bytes(), h2, promoteKey)
			insertNodeEntryAt(t, parent.Bytes(), &h2, pos2, promoteKey, promoteChild)
		} else {
			h2 := readHeader(newNode.Bytes())
			pos2 := nodeInsertPos(t, newNode.Bytes(), h2, promoteKey)
			insertNodeEntryAt(t, newNode.Bytes(), &h2, pos2, promoteKey, promoteChild)
		}
		if err := parent.ReleaseDirty(); err != nil {
			return nil, err
		}
		if err := newNode.ReleaseDirty(); err != nil {
			return nil, err
		}

		promoteKey = newSplitKey
		promoteChild = newNode.Index()
	}

	// the split propagated past the root: allocate a new root whose
	// before is the old root (path[0], already rewritten by the loop
	// above into the left half) and whose single entry is the final
	// promoted (key, child) pair.
	newRootIdx, err := t.alloc.AllocateBlocks(1, t.root)
	if err != nil {
		return nil, err
	}
	newRootPage, err := t.acc.Acquire(newRootIdx)
	if err != nil {
		return nil, err
	}
	buf := newRootPage.Bytes()
	writeHeader(buf, header{isLeaf: false, entryCount: 1})
	writeBefore(buf, t.root)
	t.setNodeEntry(t.nodeEntry(buf, 0), promoteKey, promoteChild)
	if err := newRootPage.ReleaseDirty(); err != nil {
		return nil, err
	}

	// path[0] (the old root, now the new root's "before" child) was
	// already released dirty above, either as the split leaf itself
	// (when the root was a leaf) or inside the promotion loop.
	if err := t.rootPage.ReleaseClean(); err != nil {
		return nil, err
	}
	rp, err := t.acc.Acquire(newRootIdx)
	if err != nil {
		return nil, err
	}
	t.root = newRootIdx
	t.rootPage = rp

	return &Iterator{tree: t, page: target, pos: targetPos, dirty: true}, nil
}

// nodeInsertPos finds where promoteKey should be inserted among an
// interior node's entries: the position of the first entry whose key
// is >= promoteKey (matching the source's reverse linear scan, here
// expressed as a binary search since entries are kept sorted).
func nodeInsertPos(t *Tree, buf []byte, h header, key []byte) int {
	n := int(h.entryCount)
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if t.less(t.nodeEntryKey(t.nodeEntry(buf, mid)), key) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func insertNodeEntryAt(t *Tree, buf []byte, h *header, pos int, key []byte, child block.Index) {
	sz := t.nodeEntrySize()
	n := int(h.entryCount)
	src := buf[nodeHeaderSize+pos*sz : nodeHeaderSize+n*sz]
	dst := buf[nodeHeaderSize+(pos+1)*sz : nodeHeaderSize+(n+1)*sz]
	copy(dst, src)
	entry := buf[nodeHeaderSize+pos*sz : nodeHeaderSize+(pos+1)*sz]
	t.setNodeEntry(entry, key, child)
	h.entryCount++
	writeHeader(buf, *h)
}
