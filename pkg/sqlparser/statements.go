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

// Package sqlparser is a small hand-written recursive-descent parser
// for the statement set the engine's command shell accepts: create
// and drop table, create and drop index, insert, select, delete,
// quit, and execfile. It also formats and reparses a bare column-decl
// list, the text form the root table stores as a table's create_sql.
package sqlparser

import (
	"strconv"
	"strings"

	"github.com/clarkok/cdb/pkg/cdberrors"
	"github.com/clarkok/cdb/pkg/condition"
	"github.com/clarkok/cdb/pkg/schema"
)

// Statement is the closed set of parsed statement kinds.
type Statement interface{ stmtNode() }

// CreateTable is `create table name (column-decl, ...)`.
type CreateTable struct {
	Name   string
	Schema *schema.Schema
}

// DropTable is `drop table name`.
type DropTable struct{ Name string }

// CreateIndex is `create index idx on table (column)`.
type CreateIndex struct {
	IndexName string
	TableName string
	Column    string
}

// DropIndex is `drop index idx`.
type DropIndex struct{ IndexName string }

// Select is `select * | col, ... from table [where cond]`. A nil
// Columns means `*` (every column in table order).
type Select struct {
	Columns   []string
	TableName string
	Cond      condition.Expr
}

// Insert is `insert into table values (v, ...), ...`, one row of
// literal strings per value set, in the table's own column order.
type Insert struct {
	TableName string
	Rows      [][]string
}

// Delete is `delete from table [where cond]`.
type Delete struct {
	TableName string
	Cond      condition.Expr
}

// Quit is `quit`.
type Quit struct{}

// ExecFile is `execfile 'path'`.
type ExecFile struct{ Path string }

func (CreateTable) stmtNode() {}
func (DropTable) stmtNode()   {}
func (CreateIndex) stmtNode() {}
func (DropIndex) stmtNode()   {}
func (Select) stmtNode()      {}
func (Insert) stmtNode()      {}
func (Delete) stmtNode()      {}
func (Quit) stmtNode()        {}
func (ExecFile) stmtNode()    {}

// FormatSchema renders s as the column-decl-list text the root table
// persists in create_sql: "name type[(n)],...,primary key (name)".
func FormatSchema(s *schema.Schema) string {
	var b strings.Builder
	for i, f := range s.Fields {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(f.Name)
		b.WriteString(" ")
		switch f.Type {
		case schema.Integer:
			b.WriteString("int")
		case schema.Float:
			b.WriteString("float")
		case schema.Char:
			b.WriteString("char(")
			b.WriteString(strconv.Itoa(f.Length))
			b.WriteString(")")
		case schema.Text:
			b.WriteString("text")
		}
	}
	if s.Primary >= 0 && s.Primary < len(s.Fields) {
		b.WriteString(",primary key (")
		b.WriteString(s.Fields[s.Primary].Name)
		b.WriteString(")")
	}
	return b.String()
}

// ParseSchema parses a bare column-decl list (no surrounding
// parentheses), the inverse of FormatSchema.
func ParseSchema(text string) (*schema.Schema, error) {
	p := &parser{l: newLexer(text)}
	s, err := p.parseColumnDeclList()
	if err != nil {
		return nil, err
	}
	if t := p.l.peekTok(); t.kind != tokEOF {
		return nil, errUnexpected(t)
	}
	return s, nil
}

func errNoSuchColumn(name string) error {
	return cdberrors.NewSchemaMisuse("no such column in primary key clause: " + name)
}
