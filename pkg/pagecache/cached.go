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

package pagecache

import (
	"container/list"

	"github.com/clarkok/cdb/pkg/block"
	"github.com/clarkok/cdb/pkg/cdberrors"
)

// blocksPerLine is how many contiguous blocks one 1 MiB cache line holds.
const blocksPerLine = (1 << 20) / block.Size

// DefaultLineCapacity is the default number of resident cache lines
// (100 lines * 1 MiB == 100 MiB working set), matching spec.md §4.3.
const DefaultLineCapacity = 100

type cacheLine struct {
	tag      block.Index // blockIndex / blocksPerLine
	buf      []byte      // blocksPerLine * block.Size bytes
	refcount int
}

// CachedAccessor is the bounded LRU page accessor: it groups
// contiguous runs of blocksPerLine blocks into single cache lines,
// evicting the least-recently-used unpinned line when capacity is
// exceeded. Grounded on the container/list + map LRU shape used
// throughout the teacher codebase's own cache package.
type CachedAccessor struct {
	dev      *block.Device
	capacity int
	ll       *list.List // of *cacheLine, front = most recently used
	elems    map[block.Index]*list.Element
}

// NewCachedAccessor wraps dev with an LRU accessor of the given line capacity.
func NewCachedAccessor(dev *block.Device, capacity int) *CachedAccessor {
	if capacity <= 0 {
		capacity = DefaultLineCapacity
	}
	return &CachedAccessor{
		dev:      dev,
		capacity: capacity,
		ll:       list.New(),
		elems:    make(map[block.Index]*list.Element),
	}
}

func (a *CachedAccessor) lineOffset(i block.Index) (tag block.Index, offset int) {
	tag = i / blocksPerLine
	offset = int(i%blocksPerLine) * block.Size
	return
}

// Acquire implements Accessor.
func (a *CachedAccessor) Acquire(i block.Index) (*Page, error) {
	tag, offset := a.lineOffset(i)

	if el, ok := a.elems[tag]; ok {
		a.ll.MoveToFront(el)
		cl := el.Value.(*cacheLine)
		cl.refcount++
		return &Page{owner: a, acquirer: a, index: i, buf: cl.buf[offset : offset+block.Size]}, nil
	}

	if a.ll.Len() >= a.capacity {
		if err := a.evictOne(); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, blocksPerLine*block.Size)
	if err := a.dev.ReadBlocks(tag*blocksPerLine, blocksPerLine, buf); err != nil {
		return nil, err
	}
	cl := &cacheLine{tag: tag, buf: buf, refcount: 1}
	el := a.ll.PushFront(cl)
	a.elems[tag] = el
	return &Page{owner: a, acquirer: a, index: i, buf: buf[offset : offset+block.Size]}, nil
}

func (a *CachedAccessor) evictOne() error {
	for el := a.ll.Back(); el != nil; el = el.Prev() {
		cl := el.Value.(*cacheLine)
		if cl.refcount == 0 {
			a.ll.Remove(el)
			delete(a.elems, cl.tag)
			return nil
		}
	}
	return cdberrors.WrapFatal(errNoEvictableLine, "pagecache: cached evict")
}

// release writes back exactly the one block's slice when dirty, per
// spec.md §4.3: the cached accessor never write-backs a whole line on
// eviction, only the single block passed at release time.
func (a *CachedAccessor) release(i block.Index, dirty bool) error {
	tag, offset := a.lineOffset(i)
	el, ok := a.elems[tag]
	if !ok {
		return cdberrors.WrapFatal(errNotAcquired, "pagecache: cached release")
	}
	cl := el.Value.(*cacheLine)
	if dirty {
		if err := a.dev.WriteBlock(i, cl.buf[offset:offset+block.Size]); err != nil {
			return err
		}
	}
	cl.refcount--
	if cl.refcount < 0 {
		return cdberrors.WrapFatal(errOverRelease, "pagecache: cached release")
	}
	return nil
}

// Flush is a no-op beyond syncing the device: dirty blocks are
// written back synchronously at release time, never deferred.
func (a *CachedAccessor) Flush() error {
	return a.dev.Flush()
}
