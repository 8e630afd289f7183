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

// Package block implements the fixed-size block device: the bottom
// layer of the storage stack, backed by a single regular file.
package block

import (
	"io"
	"os"

	"github.com/clarkok/cdb/pkg/cdberrors"
)

// Size is the fixed block size in bytes. It is a compile-time
// constant throughout the engine; every on-disk layout is derived
// from it.
const Size = 1024

// Index addresses a block. Index 0 is reserved for the file header.
type Index uint32

// Device is a fixed-size block device over a regular file. It is not
// safe for concurrent use; the engine is single-threaded by design
// (see the concurrency model).
type Device struct {
	f *os.File
}

// Open opens (creating if necessary) the file at path as a block device.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, cdberrors.WrapFatal(err, "block: open")
	}
	return &Device{f: f}, nil
}

// Close closes the underlying file. It does not flush any in-memory
// cache; callers must flush the page accessor first.
func (d *Device) Close() error {
	if err := d.f.Close(); err != nil {
		return cdberrors.WrapFatal(err, "block: close")
	}
	return nil
}

// ReadBlock reads block i into dest, which must be exactly Size
// bytes. Reads past end-of-file are zero-filled rather than erroring,
// since an unallocated block is logically all-zero.
func (d *Device) ReadBlock(i Index, dest []byte) error {
	if len(dest) != Size {
		return cdberrors.WrapFatal(errShortBuffer, "block: read_block")
	}
	n, err := d.f.ReadAt(dest, int64(i)*Size)
	if err != nil && err != io.EOF {
		return cdberrors.WrapFatal(err, "block: read_block")
	}
	for ; n < Size; n++ {
		dest[n] = 0
	}
	return nil
}

// WriteBlock writes src (exactly Size bytes) to block i, extending
// the file if necessary.
func (d *Device) WriteBlock(i Index, src []byte) error {
	if len(src) != Size {
		return cdberrors.WrapFatal(errShortBuffer, "block: write_block")
	}
	if _, err := d.f.WriteAt(src, int64(i)*Size); err != nil {
		return cdberrors.WrapFatal(err, "block: write_block")
	}
	return nil
}

// ReadBlocks reads count contiguous blocks starting at start into
// dest, which must be exactly count*Size bytes.
func (d *Device) ReadBlocks(start Index, count int, dest []byte) error {
	if len(dest) != count*Size {
		return cdberrors.WrapFatal(errShortBuffer, "block: read_blocks")
	}
	n, err := d.f.ReadAt(dest, int64(start)*Size)
	if err != nil && err != io.EOF {
		return cdberrors.WrapFatal(err, "block: read_blocks")
	}
	for ; n < len(dest); n++ {
		dest[n] = 0
	}
	return nil
}

// WriteBlocks writes count contiguous blocks starting at start from src.
func (d *Device) WriteBlocks(start Index, count int, src []byte) error {
	if len(src) != count*Size {
		return cdberrors.WrapFatal(errShortBuffer, "block: write_blocks")
	}
	if _, err := d.f.WriteAt(src, int64(start)*Size); err != nil {
		return cdberrors.WrapFatal(err, "block: write_blocks")
	}
	return nil
}

// Flush forces any OS-buffered writes to stable storage.
func (d *Device) Flush() error {
	if err := d.f.Sync(); err != nil {
		return cdberrors.WrapFatal(err, "block: flush")
	}
	return nil
}

// BlockCount returns the size of the backing file in blocks.
func (d *Device) BlockCount() (int64, error) {
	fi, err := d.f.Stat()
	if err != nil {
		return 0, cdberrors.WrapFatal(err, "block: stat")
	}
	n := fi.Size() / Size
	if fi.Size()%Size != 0 {
		n++
	}
	return n, nil
}

var errShortBuffer = shortBufferError{}

type shortBufferError struct{}

func (shortBufferError) Error() string { return "buffer length does not match block size" }
