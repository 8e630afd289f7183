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

// Package bitmap implements the on-disk bitmap block allocator: the
// second layer of the storage stack. It reads and writes raw blocks
// directly through a block.Device; it is not routed through the page
// accessor because its working set (one bitmap block per 8192-block
// section) is tiny and its own lifecycle (load-on-open, flush-on-
// close) does not benefit from page-level caching.
package bitmap

import (
	"encoding/binary"
	"math/bits"

	"github.com/clarkok/cdb/pkg/block"
	"github.com/clarkok/cdb/pkg/cdberrors"
)

const (
	// blockPerSection is the number of blocks a single bitmap block
	// can describe: one bit per block, 8 bits per byte, block.Size bytes.
	blockPerSection = block.Size * 8
	// maxSectionCount is how many 32-bit section-count slots fit in
	// the count block.
	maxSectionCount = block.Size / 4
	// blockPerUnit is the width, in blocks, of a single allocation
	// search unit (a uint32 word of the bitmap).
	blockPerUnit = 32
	// maxUnitCount is the number of uint32 words in one bitmap block.
	maxUnitCount = block.Size / 4
)

type section struct {
	index   block.Index
	bitmap  []byte
	count   uint32
	dirty   bool
}

// Allocator is the bitmap block allocator. StartAt blocks 0..startAt
// (inclusive of the count block) are reserved permanently.
type Allocator struct {
	dev      *block.Device
	startAt  block.Index
	sections []section
	count    []byte // the raw count block, block.Size bytes
}

// Open loads an existing allocator state from dev, starting at startAt.
func Open(dev *block.Device, startAt block.Index) (*Allocator, error) {
	a := &Allocator{dev: dev, startAt: startAt, count: make([]byte, block.Size)}
	if err := dev.ReadBlock(a.countBlockIndex(), a.count); err != nil {
		return nil, err
	}
	sectionCount := binary.LittleEndian.Uint32(a.count[(maxSectionCount-1)*4:])
	for i := uint32(0); i < sectionCount; i++ {
		buf := make([]byte, block.Size)
		if err := dev.ReadBlock(a.bitmapBlockIndex(block.Index(i)), buf); err != nil {
			return nil, err
		}
		cnt := binary.LittleEndian.Uint32(a.count[i*4:])
		a.sections = append(a.sections, section{index: block.Index(i), bitmap: buf, count: cnt})
	}
	return a, nil
}

// Reset clears all allocator state, appends one fresh section, and
// reserves blocks 0..startAt (inclusive of the count block itself).
func (a *Allocator) Reset() error {
	a.count = make([]byte, block.Size)
	a.sections = nil
	a.appendSection()
	for i := block.Index(0); i < a.startAt; i++ {
		a.reserve(i)
	}
	a.reserve(a.startAt)
	return a.Flush()
}

// Flush writes every dirty bitmap block and then the count block, in
// that order. A crash between the two writes leaves the on-disk
// counts behind the bitmaps they describe.
func (a *Allocator) Flush() error {
	if len(a.sections) == 0 {
		return nil
	}
	for i := range a.sections {
		binary.LittleEndian.PutUint32(a.count[i*4:], a.sections[i].count)
		if a.sections[i].dirty {
			if err := a.dev.WriteBlock(a.bitmapBlockIndex(a.sections[i].index), a.sections[i].bitmap); err != nil {
				return err
			}
			a.sections[i].dirty = false
		}
	}
	binary.LittleEndian.PutUint32(a.count[(maxSectionCount-1)*4:], uint32(len(a.sections)))
	if err := a.dev.WriteBlock(a.countBlockIndex(), a.count); err != nil {
		return err
	}
	return a.dev.Flush()
}

func (a *Allocator) countBlockIndex() block.Index { return a.startAt }

func (a *Allocator) bitmapBlockIndex(sectionIndex block.Index) block.Index {
	return block.Index((uint64(sectionIndex)+1)*blockPerSection - blockPerUnit)
}

func (a *Allocator) appendSection() {
	newIndex := block.Index(len(a.sections))
	a.sections = append(a.sections, section{index: newIndex, bitmap: make([]byte, block.Size)})
	a.reserve(a.bitmapBlockIndex(newIndex))
}

func (a *Allocator) reserve(index block.Index) {
	sectionIndex := uint32(index) / blockPerSection
	offset := uint32(index) % blockPerSection
	a.setRange(&a.sections[sectionIndex], offset, 1, true)
}

func (a *Allocator) setRange(s *section, offset, length uint32, on bool) {
	unitIndex := offset / blockPerUnit
	unitOffset := offset % blockPerUnit
	words := asWords(s.bitmap)
	var mask uint32
	if length == 32 {
		mask = ^uint32(0)
	} else {
		mask = ((uint32(1) << length) - 1) << unitOffset
	}
	if on {
		words[unitIndex] |= mask
		s.count += length
	} else {
		words[unitIndex] &^= mask
		s.count -= length
	}
	putWords(s.bitmap, words)
	s.dirty = true
}

// AllocateBlocks finds length (1..32) consecutive free blocks not
// crossing a 32-block boundary, preferring the section containing
// hint, then sections before it (searching backward), then sections
// after it, appending a new section if none fits. It returns the
// absolute index of the first allocated block.
func (a *Allocator) AllocateBlocks(length uint32, hint block.Index) (block.Index, error) {
	if length < 1 || length > blockPerUnit {
		return 0, cdberrors.WrapFatal(errBadLength, "bitmap: allocate_blocks")
	}

	hintSection := uint32(hint) / blockPerSection
	sectionHint := uint32(hint) % blockPerSection

	for uint32(len(a.sections)) <= hintSection {
		a.appendSection()
	}

	if a.sections[hintSection].count <= blockPerSection-length {
		if off, ok := a.allocateInSection(&a.sections[hintSection], length, sectionHint); ok {
			return block.Index(off) + block.Index(hintSection)*blockPerSection, nil
		}
	}

	if hintSection > 0 {
		for section := int(hintSection) - 1; section >= 0; section-- {
			s := &a.sections[section]
			if s.count <= blockPerSection-length {
				if off, ok := a.allocateInSection(s, length, 0); ok {
					return block.Index(off) + block.Index(section)*blockPerSection, nil
				}
			}
		}
	}

	for section := int(hintSection) + 1; section < len(a.sections); section++ {
		s := &a.sections[section]
		if s.count <= blockPerSection-length {
			if off, ok := a.allocateInSection(s, length, 0); ok {
				return block.Index(off) + block.Index(section)*blockPerSection, nil
			}
		}
	}

	a.appendSection()
	last := len(a.sections) - 1
	off, ok := a.allocateInSection(&a.sections[last], length, 0)
	if !ok {
		return 0, cdberrors.WrapFatal(errAllocatorInvariant, "bitmap: allocate_blocks: fresh section has no room")
	}
	return block.Index(off) + block.Index(last)*blockPerSection, nil
}

// allocateInSection performs the count-leading-zeros free-run search
// within one section's bitmap, starting at the hinted unit and
// scanning forward, then (if hinted) backward from the hint.
func (a *Allocator) allocateInSection(s *section, length, sectionHint uint32) (uint32, bool) {
	words := asWords(s.bitmap)
	hintUnit := sectionHint / blockPerUnit

	for i := hintUnit; i < maxUnitCount; i++ {
		leading := uint32(bits.LeadingZeros32(words[i]))
		if leading >= length {
			result := i*blockPerUnit + (32 - leading)
			a.setRange(s, result, length, true)
			return result, true
		}
	}

	if sectionHint != 0 {
		for i := int(hintUnit); i >= 0; i-- {
			leading := uint32(bits.LeadingZeros32(words[i]))
			if leading >= length {
				result := uint32(i)*blockPerUnit + (32 - leading)
				a.setRange(s, result, length, true)
				return result, true
			}
		}
	}

	return 0, false
}

// FreeBlocks clears the length bits starting at index. No coalescing
// is needed: allocation always searches per-word zero runs fresh.
func (a *Allocator) FreeBlocks(index block.Index, length uint32) {
	sectionIndex := uint32(index) / blockPerSection
	offset := uint32(index) % blockPerSection
	a.setRange(&a.sections[sectionIndex], offset, length, false)
}

// InUseCount returns the number of in-use blocks recorded for
// section i, for testing the allocator-round-trip invariant.
func (a *Allocator) InUseCount(i int) uint32 { return a.sections[i].count }

// SectionCount returns the number of active sections.
func (a *Allocator) SectionCount() int { return len(a.sections) }

// Popcount returns the number of set bits in section i's bitmap.
func (a *Allocator) Popcount(i int) uint32 {
	var n uint32
	for _, w := range asWords(a.sections[i].bitmap) {
		n += uint32(bits.OnesCount32(w))
	}
	return n
}

func asWords(buf []byte) []uint32 {
	words := make([]uint32, len(buf)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return words
}

func putWords(buf []byte, words []uint32) {
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
}

type allocatorError string

func (e allocatorError) Error() string { return string(e) }

const (
	errBadLength          = allocatorError("allocate_blocks: length must be in 1..32")
	errAllocatorInvariant = allocatorError("allocator invariant violated")
)
