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

// Package pagecache implements the reference-counted in-memory page
// accessor (two variants: a basic map-backed accessor, and a bounded
// LRU cached accessor grouping contiguous blocks into larger cache
// lines) and the Page handle that scopes a single acquire.
package pagecache

import "github.com/clarkok/cdb/pkg/block"

// Accessor is implemented by both the basic and the LRU-cached page
// accessors. Acquire pins block i in memory and returns a handle to
// it; every Acquire must be matched by exactly one release on the
// returned Page.
type Accessor interface {
	Acquire(i block.Index) (*Page, error)
	Flush() error
}

// releaser is the internal half of Accessor a Page calls back into;
// kept separate from Accessor so Page doesn't need the full interface.
type releaser interface {
	release(i block.Index, dirty bool) error
}

// Page is a scoped owner of a single acquire of one block. Every
// mutation path must end the page's life with ReleaseDirty; a
// read-only path that can prove it made no change may use
// ReleaseClean to avoid an unnecessary write-back. There is no
// parameterized "dirty bool" release method on purpose: a caller
// must make the choice explicit at the call site rather than carry a
// bool whose default could silently drop a write.
type Page struct {
	owner    releaser
	acquirer Accessor
	index    block.Index
	buf      []byte
	released bool
}

// Index returns the block index this page was acquired for.
func (p *Page) Index() block.Index { return p.index }

// Bytes returns the mutable byte slice backing this page. The slice
// is exactly block.Size bytes and aliases the accessor's resident
// buffer; it becomes invalid after the page is released.
func (p *Page) Bytes() []byte { return p.buf }

// Acquire re-acquires the same block, incrementing its refcount, and
// returns an independent handle to it (the "copy" case of the page
// handle's semantics: callers must release both handles separately).
func (p *Page) Acquire() (*Page, error) {
	return p.acquirer.Acquire(p.index)
}

// ReleaseDirty releases this handle's acquire, marking the page as
// modified so it is written back (immediately for the cached
// accessor, on final release for the basic accessor).
func (p *Page) ReleaseDirty() error {
	if p.released {
		return nil
	}
	p.released = true
	return p.owner.release(p.index, true)
}

// ReleaseClean releases this handle's acquire without marking the
// page as modified. Use only when the handle's lifetime made no
// change to the block's contents.
func (p *Page) ReleaseClean() error {
	if p.released {
		return nil
	}
	p.released = true
	return p.owner.release(p.index, false)
}
