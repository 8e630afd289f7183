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

// Package schema defines field layout and the per-type codec used to
// convert between SQL literals and the fixed-width byte encoding
// records carry on disk and in memory.
package schema

import "github.com/clarkok/cdb/pkg/cdberrors"

// Type identifies a field's storage representation.
type Type int

const (
	Unknown Type = iota
	Integer
	Float
	Char
	Text
)

func (t Type) String() string {
	switch t {
	case Integer:
		return "INTEGER"
	case Float:
		return "FLOAT"
	case Char:
		return "CHAR"
	case Text:
		return "TEXT"
	default:
		return "UNKNOWN"
	}
}

// Field is one column of a Schema: its storage type, encoded width,
// and name. INTEGER and FLOAT are always 4 bytes; CHAR(n) is exactly
// n bytes, NUL-padded when the value is shorter; TEXT reserves a
// 4-byte indirection slot that this codec never resolves (see
// FromString/ToString).
type Field struct {
	Name   string
	Type   Type
	Length int
}

// Size returns the field's fixed encoded width in bytes.
func (f Field) Size() int {
	switch f.Type {
	case Integer, Float, Text:
		return 4
	case Char:
		return f.Length
	default:
		return 0
	}
}

// Schema is an ordered list of fields plus the index of the
// designated primary field. Records are dense: no padding between
// fields, so a field's offset is the sum of the sizes of the fields
// before it.
type Schema struct {
	Fields  []Field
	Primary int
}

// RecordSize is the sum of every field's encoded width.
func (s *Schema) RecordSize() int {
	total := 0
	for _, f := range s.Fields {
		total += f.Size()
	}
	return total
}

// Offset returns the byte offset of the named field within an
// encoded record.
func (s *Schema) Offset(name string) (int, error) {
	offset := 0
	for _, f := range s.Fields {
		if f.Name == name {
			return offset, nil
		}
		offset += f.Size()
	}
	return 0, cdberrors.NewSchemaMisuse("no such column: " + name)
}

// Column returns the field definition and byte offset for name.
func (s *Schema) Column(name string) (Field, int, error) {
	offset := 0
	for _, f := range s.Fields {
		if f.Name == name {
			return f, offset, nil
		}
		offset += f.Size()
	}
	return Field{}, 0, cdberrors.NewSchemaMisuse("no such column: " + name)
}

// PrimaryField returns the schema's designated primary field and its
// byte offset.
func (s *Schema) PrimaryField() (Field, int) {
	offset := 0
	for i, f := range s.Fields {
		if i == s.Primary {
			return f, offset
		}
		offset += f.Size()
	}
	return Field{}, 0
}

// Slice returns the byte range of the named field within record.
func (s *Schema) Slice(record []byte, name string) ([]byte, error) {
	f, off, err := s.Column(name)
	if err != nil {
		return nil, err
	}
	return record[off : off+f.Size()], nil
}

// Project builds a new record containing only the named fields, in
// the order given, copied out of src which must be laid out per
// schema s. The caller-supplied target schema's field order controls
// the output layout.
func Project(s, target *Schema, src []byte) ([]byte, error) {
	out := make([]byte, target.RecordSize())
	pos := 0
	for _, tf := range target.Fields {
		sf, off, err := s.Column(tf.Name)
		if err != nil {
			return nil, err
		}
		if sf.Type != tf.Type || sf.Size() != tf.Size() {
			return nil, cdberrors.NewSchemaMisuse("projected column type mismatch: " + tf.Name)
		}
		copy(out[pos:pos+tf.Size()], src[off:off+sf.Size()])
		pos += tf.Size()
	}
	return out, nil
}
