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

// Erase removes key if present, reporting whether it was found. A
// leaf that drops below half capacity is merged with a sibling under
// its parent; merges cascade upward and may collapse the root.
func (t *Tree) Erase(key []byte) (bool, error) {
	path, err := t.descend(key)
	if err != nil {
		releaseAllClean(path)
		return false, err
	}

	leafIdx := len(path) - 1
	leaf := path[leafIdx]
	h := readHeader(leaf.Bytes())
	pos := t.findInLeaf(leaf.Bytes(), h, key)
	if pos == int(h.entryCount) || !t.equal(t.leafEntryKey(t.leafEntry(leaf.Bytes(), pos)), key) {
		releaseAllClean(path)
		return false, nil
	}

	t.eraseLeafEntryAt(leaf.Bytes(), &h, pos)

	var newFirstKey []byte
	keyChanged := pos == 0 && h.entryCount > 0
	if keyChanged {
		newFirstKey = append([]byte(nil), t.leafEntryKey(t.leafEntry(leaf.Bytes(), 0))...)
	}

	minLeaf := t.maxEntriesPerLeaf() / 2
	if leafIdx == 0 || int(h.entryCount) >= minLeaf {
		if err := leaf.ReleaseDirty(); err != nil {
			releaseAllClean(path[:leafIdx])
			return false, err
		}
		if keyChanged {
			return true, t.propagateKeyUpdate(path[:leafIdx], leaf.Index(), newFirstKey)
		}
		return true, releaseAllClean(path[:leafIdx])
	}

	return true, t.mergeUpward(path, leafIdx, leaf.Index(), keyChanged, newFirstKey)
}

func (t *Tree) eraseLeafEntryAt(buf []byte, h *header, pos int) {
	sz := t.leafEntrySize()
	n := int(h.entryCount)
	dst := buf[leafHeaderSize+pos*sz : leafHeaderSize+(n-1)*sz]
	src := buf[leafHeaderSize+(pos+1)*sz : leafHeaderSize+n*sz]
	copy(dst, src)
	h.entryCount--
	writeHeader(buf, *h)
}

func (t *Tree) eraseNodeEntryAt(buf []byte, h *header, pos int) {
	sz := t.nodeEntrySize()
	n := int(h.entryCount)
	dst := buf[nodeHeaderSize+pos*sz : nodeHeaderSize+(n-1)*sz]
	src := buf[nodeHeaderSize+(pos+1)*sz : nodeHeaderSize+n*sz]
	copy(dst, src)
	h.entryCount--
	writeHeader(buf, *h)
}

// findChildSlot reports where childIdx sits among parent's children:
// -1 for the "before" pointer, or the index of the entry whose child
// pointer equals childIdx.
func (t *Tree) findChildSlot(buf []byte, h header, childIdx block.Index) int {
	if readBefore(buf) == childIdx {
		return -1
	}
	for i := 0; i < int(h.entryCount); i++ {
		if t.nodeEntryChild(t.nodeEntry(buf, i)) == childIdx {
			return i
		}
	}
	return -1
}

// mergeLeaf appends right's entries onto left, relinks the leaf
// chain around right, and updates lastLeafIdx if right was last. The
// caller must already have checked that the combined entry count
// fits in one block.
func (t *Tree) mergeLeaf(left, right *pagecache.Page) error {
	lBuf, rBuf := left.Bytes(), right.Bytes()
	lh, rh := readHeader(lBuf), readHeader(rBuf)
	sz := t.leafEntrySize()

	copy(lBuf[leafHeaderSize+int(lh.entryCount)*sz:], rBuf[leafHeaderSize:leafHeaderSize+int(rh.entryCount)*sz])
	lh.entryCount += rh.entryCount
	lh.next = rh.next
	writeHeader(lBuf, lh)

	if rh.next == 0 {
		t.setLastLeaf(left.Index())
	} else {
		next, err := t.acc.Acquire(rh.next)
		if err != nil {
			return err
		}
		nh := readHeader(next.Bytes())
		nh.prev = left.Index()
		writeHeader(next.Bytes(), nh)
		if err := next.ReleaseDirty(); err != nil {
			return err
		}
	}
	return right.ReleaseClean()
}

// mergeNode folds right into left, pulling sepKey down from the
// parent as the entry separating left's old contents from right's
// "before" child, then appending right's own entries. The caller must
// already have checked that the combined entry count (including the
// pulled-down separator) fits in one block.
func (t *Tree) mergeNode(left, right *pagecache.Page, sepKey []byte) error {
	lBuf, rBuf := left.Bytes(), right.Bytes()
	lh, rh := readHeader(lBuf), readHeader(rBuf)
	sz := t.nodeEntrySize()

	sepEntry := lBuf[nodeHeaderSize+int(lh.entryCount)*sz : nodeHeaderSize+(int(lh.entryCount)+1)*sz]
	t.setNodeEntry(sepEntry, sepKey, readBefore(rBuf))
	lh.entryCount++

	copy(lBuf[nodeHeaderSize+int(lh.entryCount)*sz:], rBuf[nodeHeaderSize:nodeHeaderSize+int(rh.entryCount)*sz])
	lh.entryCount += rh.entryCount
	lh.next = rh.next
	writeHeader(lBuf, lh)

	if rh.next != 0 {
		next, err := t.acc.Acquire(rh.next)
		if err != nil {
			return err
		}
		nh := readHeader(next.Bytes())
		nh.prev = left.Index()
		writeHeader(next.Bytes(), nh)
		if err := next.ReleaseDirty(); err != nil {
			return err
		}
	}
	return right.ReleaseClean()
}

// propagateKeyUpdate rewrites the first ancestor separator that
// points at childIdx to newKey, walking from the closest ancestor
// upward. A childIdx only reachable via "before" pointers all the
// way up (the tree's global leftmost leaf) has no separator to fix.
func (t *Tree) propagateKeyUpdate(ancestors []*pagecache.Page, childIdx block.Index, newKey []byte) error {
	for j := len(ancestors) - 1; j >= 0; j-- {
		parent := ancestors[j]
		ph := readHeader(parent.Bytes())
		pos := t.findChildSlot(parent.Bytes(), ph, childIdx)
		if pos >= 0 {
			entry := t.nodeEntry(parent.Bytes(), pos)
			copy(entry[:t.keySize], newKey)
			if err := parent.ReleaseDirty(); err != nil {
				return err
			}
			return releaseAllClean(ancestors[:j])
		}
		childIdx = parent.Index()
		if err := parent.ReleaseClean(); err != nil {
			return err
		}
	}
	return nil
}

// mergeUpward handles an underflowed node at path[level] (already
// modified in place by the caller) by merging it with a sibling under
// its parent, cascading the merge upward through ancestors that
// themselves underflow, and collapsing the root if it empties out. A
// sibling merge that would not fit in a single block is skipped,
// leaving the node underfull but valid; the cascade stops there since
// the parent separator was never touched.
func (t *Tree) mergeUpward(path []*pagecache.Page, level int, leafIdx block.Index, keyChanged bool, newKey []byte) error {
	child := path[level]
	childIdx := child.Index()
	leafSurvives := true

	for level > 0 {
		parent := path[level-1]
		ph := readHeader(parent.Bytes())
		slot := t.findChildSlot(parent.Bytes(), ph, childIdx)

		var leftPage, rightPage *pagecache.Page
		var err error
		leftIsChild := slot == -1
		sepSlot := slot
		switch {
		case leftIsChild:
			leftPage = child
			rightPage, err = t.acc.Acquire(t.nodeEntryChild(t.nodeEntry(parent.Bytes(), 0)))
			sepSlot = 0
		case slot == 0:
			leftPage, err = t.acc.Acquire(readBefore(parent.Bytes()))
			rightPage = child
		default:
			leftPage, err = t.acc.Acquire(t.nodeEntryChild(t.nodeEntry(parent.Bytes(), slot-1)))
			rightPage = child
		}
		if err != nil {
			return err
		}

		lh, rh := readHeader(leftPage.Bytes()), readHeader(rightPage.Bytes())
		var fits bool
		if lh.isLeaf {
			fits = int(lh.entryCount)+int(rh.entryCount) <= t.maxEntriesPerLeaf()
		} else {
			// mergeNode also pulls the parent separator down as an
			// extra entry, so the combined count is one larger.
			fits = int(lh.entryCount)+1+int(rh.entryCount) <= t.maxEntriesPerNode()
		}

		if !fits {
			// The siblings together would overflow a block. Leave
			// this node underfull rather than merge; the parent
			// separator is untouched, so there's nothing left to
			// cascade.
			if leftIsChild {
				if err := rightPage.ReleaseClean(); err != nil {
					return err
				}
				if err := leftPage.ReleaseDirty(); err != nil {
					return err
				}
			} else {
				if err := leftPage.ReleaseClean(); err != nil {
					return err
				}
				if err := rightPage.ReleaseDirty(); err != nil {
					return err
				}
			}
			if keyChanged && leafSurvives {
				return t.propagateKeyUpdate(path[:level], childIdx, newKey)
			}
			if err := parent.ReleaseClean(); err != nil {
				return err
			}
			return releaseAllClean(path[:level-1])
		}

		if lh.isLeaf {
			if err := t.mergeLeaf(leftPage, rightPage); err != nil {
				return err
			}
		} else {
			sepKey := append([]byte(nil), t.nodeEntryKey(t.nodeEntry(parent.Bytes(), sepSlot))...)
			if err := t.mergeNode(leftPage, rightPage, sepKey); err != nil {
				return err
			}
		}
		t.alloc.FreeBlocks(rightPage.Index(), 1)

		rslot := t.findChildSlot(parent.Bytes(), ph, rightPage.Index())
		t.eraseNodeEntryAt(parent.Bytes(), &ph, rslot)

		survivorIdx := leftPage.Index()
		leafSurvives = leafSurvives && leftIsChild
		if err := leftPage.ReleaseDirty(); err != nil {
			return err
		}

		if level-1 == 0 {
			if ph.entryCount == 0 {
				if err := t.rootPage.ReleaseClean(); err != nil {
					return err
				}
				t.alloc.FreeBlocks(t.root, 1)
				t.root = survivorIdx
				rp, err := t.acc.Acquire(survivorIdx)
				if err != nil {
					return err
				}
				t.rootPage = rp
			} else {
				writeHeader(parent.Bytes(), ph)
				if err := parent.ReleaseDirty(); err != nil {
					return err
				}
			}
			if keyChanged && leafSurvives {
				return t.propagateKeyUpdate(nil, leafIdx, newKey)
			}
			return nil
		}

		writeHeader(parent.Bytes(), ph)
		minNode := t.maxEntriesPerNode() / 2
		if int(ph.entryCount) >= minNode {
			parentIdx := parent.Index()
			if err := parent.ReleaseDirty(); err != nil {
				return err
			}
			if keyChanged && leafSurvives {
				return t.propagateKeyUpdate(path[:level-1], parentIdx, newKey)
			}
			return releaseAllClean(path[:level-1])
		}

		reacquired, err := parent.Acquire()
		if err != nil {
			return err
		}
		if err := parent.ReleaseDirty(); err != nil {
			reacquired.ReleaseClean()
			return err
		}
		child = reacquired
		childIdx = parent.Index()
		level--
	}

	return nil
}
