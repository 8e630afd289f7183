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
	"github.com/clarkok/cdb/pkg/block"
	"github.com/clarkok/cdb/pkg/cdberrors"
)

type basicEntry struct {
	buf      []byte
	refcount int
	dirty    bool
}

// BasicAccessor is a simple map-backed, reference-counted page
// accessor with no capacity bound: every acquired block stays
// resident until its refcount drops to zero.
type BasicAccessor struct {
	dev   *block.Device
	pages map[block.Index]*basicEntry
}

// NewBasicAccessor wraps dev with a basic accessor.
func NewBasicAccessor(dev *block.Device) *BasicAccessor {
	return &BasicAccessor{dev: dev, pages: make(map[block.Index]*basicEntry)}
}

// Acquire implements Accessor.
func (a *BasicAccessor) Acquire(i block.Index) (*Page, error) {
	e, ok := a.pages[i]
	if !ok {
		buf := make([]byte, block.Size)
		if err := a.dev.ReadBlock(i, buf); err != nil {
			return nil, err
		}
		e = &basicEntry{buf: buf}
		a.pages[i] = e
	}
	e.refcount++
	return &Page{owner: a, acquirer: a, index: i, buf: e.buf}, nil
}

func (a *BasicAccessor) release(i block.Index, dirty bool) error {
	e, ok := a.pages[i]
	if !ok {
		return cdberrors.WrapFatal(errNotAcquired, "pagecache: basic release")
	}
	if dirty {
		e.dirty = true
	}
	e.refcount--
	if e.refcount < 0 {
		return cdberrors.WrapFatal(errOverRelease, "pagecache: basic release")
	}
	if e.refcount == 0 {
		if e.dirty {
			if err := a.dev.WriteBlock(i, e.buf); err != nil {
				return err
			}
		}
		delete(a.pages, i)
	}
	return nil
}

// Flush writes every resident dirty buffer back without evicting it.
func (a *BasicAccessor) Flush() error {
	for i, e := range a.pages {
		if e.dirty {
			if err := a.dev.WriteBlock(i, e.buf); err != nil {
				return err
			}
			e.dirty = false
		}
	}
	return a.dev.Flush()
}

type pagecacheError string

func (e pagecacheError) Error() string { return string(e) }

const (
	errNotAcquired        = pagecacheError("release of a block that was never acquired")
	errOverRelease        = pagecacheError("release without a matching acquire")
	errCacheInvariant     = pagecacheError("cache invariant violated")
	errNoEvictableLine    = pagecacheError("no evictable cache line: all lines pinned")
)
