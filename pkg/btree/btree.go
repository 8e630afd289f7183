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
	"github.com/clarkok/cdb/pkg/bitmap"
	"github.com/clarkok/cdb/pkg/block"
	"github.com/clarkok/cdb/pkg/cdberrors"
	"github.com/clarkok/cdb/pkg/pagecache"
)

// CompareFunc is a strict less-than or equality test over two
// fixed-width keys of KeySize bytes.
type CompareFunc func(a, b []byte) bool

// Tree is an on-disk B+ tree over fixed-width keys and values. It
// keeps its root page acquired while the tree is in use; the first
// and last leaf indices live in in-memory fields, not in the root
// header.
type Tree struct {
	acc   pagecache.Accessor
	alloc *bitmap.Allocator

	less  CompareFunc
	equal CompareFunc

	keySize   int
	valueSize int

	root     block.Index
	rootPage *pagecache.Page

	// firstLeafIdx/lastLeafIdx cache the leftmost/rightmost leaf of the
	// tree while it is open, kept in memory rather than aliased into
	// the root block's header fields (spec.md §9's "Root-header
	// aliasing" design note explicitly prefers dedicated storage over
	// reusing prev/next, which would collide with those same fields'
	// ordinary sibling-chaining role once the root becomes interior).
	// They are recomputed by walking the tree on New and kept in
	// sync incrementally by split/merge, mirroring the source's
	// _first_leaf/_last_leaf members.
	firstLeafIdx block.Index
	lastLeafIdx  block.Index
}

// New wraps an existing, already-initialized tree rooted at root, or
// a not-yet-initialized tree when root is 0. Use Reset to initialize
// (or reinitialize) a tree from scratch.
func New(acc pagecache.Accessor, alloc *bitmap.Allocator, less, equal CompareFunc, keySize, valueSize int, root block.Index) (*Tree, error) {
	t := &Tree{acc: acc, alloc: alloc, less: less, equal: equal, keySize: keySize, valueSize: valueSize, root: root}
	if root != 0 {
		p, err := acc.Acquire(root)
		if err != nil {
			return nil, err
		}
		t.rootPage = p
		if err := t.recomputeLeafBounds(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// recomputeLeafBounds walks from the root to the leftmost and
// rightmost leaves, used after New opens an existing tree.
func (t *Tree) recomputeLeafBounds() error {
	first, err := t.walkEdge(t.root, true)
	if err != nil {
		return err
	}
	last, err := t.walkEdge(t.root, false)
	if err != nil {
		return err
	}
	t.firstLeafIdx, t.lastLeafIdx = first, last
	return nil
}

func (t *Tree) walkEdge(i block.Index, leftmost bool) (block.Index, error) {
	p, err := t.acc.Acquire(i)
	if err != nil {
		return 0, err
	}
	h := readHeader(p.Bytes())
	if h.isLeaf {
		if err := p.ReleaseClean(); err != nil {
			return 0, err
		}
		return i, nil
	}
	var next block.Index
	if leftmost {
		next = readBefore(p.Bytes())
	} else {
		next = t.nodeEntryChild(t.nodeEntry(p.Bytes(), int(h.entryCount)-1))
	}
	if err := p.ReleaseClean(); err != nil {
		return 0, err
	}
	return t.walkEdge(next, leftmost)
}

// Root returns the tree's current root block index.
func (t *Tree) Root() block.Index { return t.root }

// Close releases the tree's pinned root page handle. Call after a
// Flush of the underlying accessor, before the accessor itself is
// torn down.
func (t *Tree) Close() error {
	if t.rootPage == nil {
		return nil
	}
	err := t.rootPage.ReleaseClean()
	t.rootPage = nil
	return err
}

// Destroy frees every block reachable from the tree, including the
// root itself, and leaves the tree empty (root == 0) without
// allocating a replacement. Used to drop a secondary index whose
// storage will never be reopened.
func (t *Tree) Destroy() error {
	if t.root == 0 {
		return nil
	}
	if err := t.rootPage.ReleaseClean(); err != nil {
		return err
	}
	t.rootPage = nil
	if err := t.freeSubtree(t.root); err != nil {
		return err
	}
	t.root = 0
	t.firstLeafIdx = 0
	t.lastLeafIdx = 0
	return nil
}

// Reset frees every block reachable from the current root (if any)
// and allocates a fresh, empty leaf root. first_leaf and last_leaf
// both equal the new root.
func (t *Tree) Reset() error {
	if t.root != 0 {
		if err := t.freeSubtree(t.root); err != nil {
			return err
		}
		if err := t.rootPage.ReleaseClean(); err != nil {
			return err
		}
		t.rootPage = nil
	}

	idx, err := t.alloc.AllocateBlocks(1, t.root)
	if err != nil {
		return err
	}
	p, err := t.acc.Acquire(idx)
	if err != nil {
		return err
	}
	writeHeader(p.Bytes(), header{isLeaf: true, entryCount: 0, prev: 0, next: 0})
	if err := p.ReleaseDirty(); err != nil {
		return err
	}

	t.root = idx
	rp, err := t.acc.Acquire(idx)
	if err != nil {
		return err
	}
	t.rootPage = rp
	t.firstLeafIdx = idx
	t.lastLeafIdx = idx
	return nil
}

func (t *Tree) freeSubtree(i block.Index) error {
	p, err := t.acc.Acquire(i)
	if err != nil {
		return err
	}
	h := readHeader(p.Bytes())
	var children []block.Index
	if !h.isLeaf {
		children = append(children, readBefore(p.Bytes()))
		for idx := 0; idx < int(h.entryCount); idx++ {
			children = append(children, t.nodeEntryChild(t.nodeEntry(p.Bytes(), idx)))
		}
	}
	if err := p.ReleaseClean(); err != nil {
		return err
	}
	for _, c := range children {
		if err := t.freeSubtree(c); err != nil {
			return err
		}
	}
	t.alloc.FreeBlocks(i, 1)
	return nil
}

func (t *Tree) firstLeaf() block.Index { return t.firstLeafIdx }
func (t *Tree) lastLeaf() block.Index  { return t.lastLeafIdx }

func (t *Tree) setFirstLeaf(i block.Index) { t.firstLeafIdx = i }
func (t *Tree) setLastLeaf(i block.Index)  { t.lastLeafIdx = i }

// descend walks from the root to the leaf that should contain key,
// returning every page on the path (root first, leaf last), all
// still acquired. Callers release them once done (mutation paths
// release dirty; pure reads release clean).
func (t *Tree) descend(key []byte) ([]*pagecache.Page, error) {
	path := []*pagecache.Page{t.rootPage}
	// the root page is owned by the tree for its whole lifetime; give
	// the path a second independent handle to it so release logic can
	// treat every entry in path uniformly.
	rootClone, err := t.rootPage.Acquire()
	if err != nil {
		return nil, err
	}
	path[0] = rootClone

	for {
		cur := path[len(path)-1]
		h := readHeader(cur.Bytes())
		if h.isLeaf {
			return path, nil
		}
		child := t.findInNode(cur.Bytes(), h, key)
		cp, err := t.acc.Acquire(child)
		if err != nil {
			return path, err
		}
		path = append(path, cp)
	}
}

// findInNode returns the child block to descend into: the child of
// the last entry whose key <= search key, or before if the search
// key is less than every entry's key.
func (t *Tree) findInNode(buf []byte, h header, key []byte) block.Index {
	n := int(h.entryCount)
	if n == 0 || t.less(key, t.nodeEntryKey(t.nodeEntry(buf, 0))) {
		return readBefore(buf)
	}
	// last i such that entry[i].key <= key
	lo, hi := 0, n // hi = first index with key > search key (upper bound)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.less(key, t.nodeEntryKey(t.nodeEntry(buf, mid))) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return t.nodeEntryChild(t.nodeEntry(buf, lo-1))
}

// findInLeaf returns the lower-bound position (first entry with key
// >= search key) within the leaf, which may equal entryCount if every
// entry is smaller.
func (t *Tree) findInLeaf(buf []byte, h header, key []byte) int {
	n := int(h.entryCount)
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if t.less(t.leafEntryKey(t.leafEntry(buf, mid)), key) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func releaseAllClean(pages []*pagecache.Page) error {
	var firstErr error
	for _, p := range pages {
		if err := p.ReleaseClean(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Find looks up key, returning its value and true, or false if absent.
func (t *Tree) Find(key []byte) (value []byte, found bool, err error) {
	it, err := t.LowerBound(key)
	if err != nil {
		return nil, false, err
	}
	defer it.CloseClean()
	if it.Valid() && t.equal(it.Key(), key) {
		v := append([]byte(nil), it.Value()...)
		return v, true, nil
	}
	return nil, false, nil
}

// LowerBound returns an iterator at the first entry with key >= key,
// or End() if none.
func (t *Tree) LowerBound(key []byte) (*Iterator, error) {
	path, err := t.descend(key)
	if err != nil {
		releaseAllClean(path)
		return nil, err
	}
	leaf := path[len(path)-1]
	if err := releaseAllClean(path[:len(path)-1]); err != nil {
		leaf.ReleaseClean()
		return nil, err
	}
	h := readHeader(leaf.Bytes())
	pos := t.findInLeaf(leaf.Bytes(), h, key)
	if pos == int(h.entryCount) {
		return t.afterLastInLeaf(leaf, h)
	}
	return &Iterator{tree: t, page: leaf, pos: pos}, nil
}

// UpperBound returns an iterator at the first entry with key > key.
func (t *Tree) UpperBound(key []byte) (*Iterator, error) {
	it, err := t.LowerBound(key)
	if err != nil {
		return nil, err
	}
	if it.Valid() && t.equal(it.Key(), key) {
		if err := it.Next(); err != nil {
			return nil, err
		}
	}
	return it, nil
}

// afterLastInLeaf moves from a leaf where lower_bound landed past its
// last entry to the start of the next sibling leaf (or End()).
func (t *Tree) afterLastInLeaf(leaf *pagecache.Page, h header) (*Iterator, error) {
	if leaf.Index() == t.lastLeaf() {
		if err := leaf.ReleaseClean(); err != nil {
			return nil, err
		}
		return t.End(), nil
	}
	next, err := t.acc.Acquire(h.next)
	if err != nil {
		leaf.ReleaseClean()
		return nil, err
	}
	if err := leaf.ReleaseClean(); err != nil {
		next.ReleaseClean()
		return nil, err
	}
	return &Iterator{tree: t, page: next, pos: 0}, nil
}

// Begin returns an iterator at the smallest key, or End() if empty.
func (t *Tree) Begin() (*Iterator, error) {
	p, err := t.acc.Acquire(t.firstLeaf())
	if err != nil {
		return nil, err
	}
	h := readHeader(p.Bytes())
	if h.entryCount == 0 {
		if err := p.ReleaseClean(); err != nil {
			return nil, err
		}
		return t.End(), nil
	}
	return &Iterator{tree: t, page: p, pos: 0}, nil
}

// End returns the past-the-end iterator (holds no page).
func (t *Tree) End() *Iterator { return &Iterator{tree: t} }

// ForEach walks every entry in ascending key order, calling fn(key,
// value) for each until fn returns false or an error.
func (t *Tree) ForEach(fn func(key, value []byte) (bool, error)) error {
	it, err := t.Begin()
	if err != nil {
		return err
	}
	for it.Valid() {
		cont, err := fn(it.Key(), it.Value())
		if err != nil {
			it.CloseClean()
			return err
		}
		if !cont {
			break
		}
		if err := it.Next(); err != nil {
			return err
		}
	}
	return it.CloseClean()
}

// ForEachReverse walks every entry in descending key order.
func (t *Tree) ForEachReverse(fn func(key, value []byte) (bool, error)) error {
	p, err := t.acc.Acquire(t.lastLeaf())
	if err != nil {
		return err
	}
	h := readHeader(p.Bytes())
	var it *Iterator
	if h.entryCount == 0 {
		if err := p.ReleaseClean(); err != nil {
			return err
		}
		it = t.End()
	} else {
		it = &Iterator{tree: t, page: p, pos: int(h.entryCount) - 1}
	}
	for it.Valid() {
		cont, err := fn(it.Key(), it.Value())
		if err != nil {
			it.CloseClean()
			return err
		}
		if !cont {
			break
		}
		if err := it.Prev(); err != nil {
			return err
		}
	}
	return it.CloseClean()
}

type fatalError string

func (e fatalError) Error() string { return string(e) }

func invariantError(context string) error {
	return cdberrors.WrapFatal(fatalError("btree invariant violated"), context)
}
