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

package view

import (
	"bytes"

	"github.com/clarkok/cdb/pkg/cdberrors"
	"github.com/clarkok/cdb/pkg/schema"
)

// Filter reports whether record (laid out per the source view's
// schema) should be kept. A nil Filter keeps everything.
type Filter func(record []byte) (bool, error)

func keep(filter Filter, record []byte) (bool, error) {
	if filter == nil {
		return true, nil
	}
	return filter(record)
}

// Select materializes every row of src passing filter into a new
// SkipView projected to target. target's fields must all exist, by
// name and type, in src.Schema().
func Select(src View, target *schema.Schema, filter Filter) (*SkipView, error) {
	out := NewSkipView(target)
	it, err := src.Begin()
	if err != nil {
		return nil, err
	}
	for it.Valid() {
		ok, err := keep(filter, it.Value())
		if err != nil {
			it.Close()
			return nil, err
		}
		if ok {
			projected, err := schema.Project(src.Schema(), target, it.Value())
			if err != nil {
				it.Close()
				return nil, err
			}
			out.Insert(projected)
		}
		if err := it.Next(); err != nil {
			it.Close()
			return nil, err
		}
	}
	return out, it.Close()
}

// SelectIndexed resolves each primary key yielded by [begin, end)
// against src and projects the matching rows passing filter into a
// new SkipView shaped per target.
func SelectIndexed(src View, target *schema.Schema, begin, end Iterator, filter Filter) (*SkipView, error) {
	out := NewSkipView(target)
	for begin.Valid() {
		if end.Valid() && bytes.Equal(begin.Key(), end.Key()) {
			break
		}
		record, found, err := src.Find(begin.Key())
		if err != nil {
			return nil, err
		}
		if found {
			ok, err := keep(filter, record)
			if err != nil {
				return nil, err
			}
			if ok {
				projected, err := schema.Project(src.Schema(), target, record)
				if err != nil {
					return nil, err
				}
				out.Insert(projected)
			}
		}
		if err := begin.Next(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Peek scans src fully and collects the primary key of every row
// whose named column falls in [lower, upper), into a SkipView ordered
// by that primary key. lower and upper are encoded per the column's
// type and width.
func Peek(src View, col string, lower, upper []byte) (*SkipView, error) {
	colField, colOff, err := src.Schema().Column(col)
	if err != nil {
		return nil, err
	}
	primaryField, primaryOff := src.Schema().PrimaryField()
	less := schema.LessFuncForType(colField.Type)

	keySchema := &schema.Schema{Fields: []schema.Field{primaryField}, Primary: 0}
	out := NewSkipView(keySchema)

	it, err := src.Begin()
	if err != nil {
		return nil, err
	}
	for it.Valid() {
		record := it.Value()
		colValue := record[colOff : colOff+colField.Size()]
		if !less(colValue, lower) && less(colValue, upper) {
			key := append([]byte(nil), record[primaryOff:primaryOff+primaryField.Size()]...)
			out.Insert(key)
		}
		if err := it.Next(); err != nil {
			it.Close()
			return nil, err
		}
	}
	return out, it.Close()
}

// Intersect destructively retains only self's records whose key
// equals a key somewhere in [otherBegin, otherEnd). Both ranges must
// already be sorted ascending by a key of the same type and width.
func Intersect(self *SkipView, otherBegin, otherEnd Iterator) error {
	if err := checkComparable(self, otherBegin); err != nil {
		return err
	}
	equal := self.rowSchema.Equal()
	less := self.rowSchema.Less()

	merged := newRawSkipView(self.rowSchema, self.keyOff, self.keyLen)
	selfIt := self.list.Begin()
	other := otherBegin
	for selfIt.Valid() && other.Valid() && !(otherEnd.Valid() && bytes.Equal(other.Key(), otherEnd.Key())) {
		sk := selfIt.Value()[self.keyOff : self.keyOff+self.keyLen]
		ok := other.Key()
		switch {
		case equal(sk, ok):
			merged.Insert(selfIt.Value())
			selfIt.Next()
			if err := other.Next(); err != nil {
				return err
			}
		case less(sk, ok):
			selfIt.Next()
		default:
			if err := other.Next(); err != nil {
				return err
			}
		}
	}
	self.list = merged.list
	return nil
}

// Join destructively adds to self any key present in [otherBegin,
// otherEnd) but missing from self, producing the ordered union.
// self's schema must be primary-key-only, matching the record width
// an added key is stored as.
func Join(self *SkipView, otherBegin, otherEnd Iterator) error {
	if err := checkComparable(self, otherBegin); err != nil {
		return err
	}
	less := self.rowSchema.Less()
	equal := self.rowSchema.Equal()

	merged := newRawSkipView(self.rowSchema, self.keyOff, self.keyLen)
	selfIt := self.list.Begin()
	other := otherBegin
	for selfIt.Valid() || (other.Valid() && !(otherEnd.Valid() && bytes.Equal(other.Key(), otherEnd.Key()))) {
		otherDone := !other.Valid() || (otherEnd.Valid() && bytes.Equal(other.Key(), otherEnd.Key()))
		switch {
		case !selfIt.Valid():
			merged.Insert(append([]byte(nil), other.Key()...))
			if err := other.Next(); err != nil {
				return err
			}
		case otherDone:
			merged.Insert(selfIt.Value())
			selfIt.Next()
		default:
			sk := selfIt.Value()[self.keyOff : self.keyOff+self.keyLen]
			ok := other.Key()
			switch {
			case equal(sk, ok):
				merged.Insert(selfIt.Value())
				selfIt.Next()
				if err := other.Next(); err != nil {
					return err
				}
			case less(sk, ok):
				merged.Insert(selfIt.Value())
				selfIt.Next()
			default:
				merged.Insert(append([]byte(nil), ok...))
				if err := other.Next(); err != nil {
					return err
				}
			}
		}
	}
	self.list = merged.list
	return nil
}

func newRawSkipView(s *schema.Schema, keyOff, keyLen int) *SkipView {
	v := NewSkipView(s)
	v.keyOff, v.keyLen = keyOff, keyLen
	return v
}

func checkComparable(self *SkipView, other Iterator) error {
	f, _ := self.rowSchema.PrimaryField()
	if other.Valid() && len(other.Key()) != f.Size() {
		return cdberrors.NewSchemaMisuse("intersect/join operands have mismatched primary key width")
	}
	return nil
}
