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

package sqlparser

import (
	"strconv"
	"strings"

	"github.com/clarkok/cdb/pkg/cdberrors"
	"github.com/clarkok/cdb/pkg/condition"
	"github.com/clarkok/cdb/pkg/schema"
)

type parser struct {
	l *lexer
}

// Parse parses a single statement out of src.
func Parse(src string) (Statement, error) {
	p := &parser{l: newLexer(src)}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if t := p.l.peekTok(); t.kind != tokEOF {
		return nil, errUnexpected(t)
	}
	return stmt, nil
}

func (p *parser) parseStatement() (Statement, error) {
	kw, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(kw) {
	case "create":
		return p.parseCreate()
	case "drop":
		return p.parseDrop()
	case "select":
		return p.parseSelect()
	case "insert":
		return p.parseInsert()
	case "delete":
		return p.parseDelete()
	case "quit":
		return Quit{}, nil
	case "execfile":
		path, err := p.expectString()
		if err != nil {
			return nil, err
		}
		return ExecFile{Path: path}, nil
	default:
		return nil, cdberrors.NewParseError("unknown statement: " + kw)
	}
}

func (p *parser) parseCreate() (Statement, error) {
	kw, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(kw) {
	case "table":
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		s, err := p.parseColumnDeclList()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return CreateTable{Name: name, Schema: s}, nil
	case "index":
		indexName, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("on"); err != nil {
			return nil, err
		}
		tableName, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		column, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return CreateIndex{IndexName: indexName, TableName: tableName, Column: column}, nil
	default:
		return nil, cdberrors.NewParseError("expected table or index after create, got " + kw)
	}
}

func (p *parser) parseDrop() (Statement, error) {
	kw, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(kw) {
	case "table":
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return DropTable{Name: name}, nil
	case "index":
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return DropIndex{IndexName: name}, nil
	default:
		return nil, cdberrors.NewParseError("expected table or index after drop, got " + kw)
	}
}

func (p *parser) parseSelect() (Statement, error) {
	var columns []string
	if t := p.l.peekTok(); t.kind == tokPunct && t.text == "*" {
		p.l.next()
	} else {
		for {
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			columns = append(columns, name)
			if t := p.l.peekTok(); t.kind == tokPunct && t.text == "," {
				p.l.next()
				continue
			}
			break
		}
	}
	if err := p.expectKeyword("from"); err != nil {
		return nil, err
	}
	tableName, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	cond, err := p.parseOptionalWhere()
	if err != nil {
		return nil, err
	}
	return Select{Columns: columns, TableName: tableName, Cond: cond}, nil
}

func (p *parser) parseInsert() (Statement, error) {
	if err := p.expectKeyword("into"); err != nil {
		return nil, err
	}
	tableName, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("values"); err != nil {
		return nil, err
	}
	var rows [][]string
	for {
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		var row []string
		for {
			v, err := p.expectValue()
			if err != nil {
				return nil, err
			}
			row = append(row, v)
			if t := p.l.peekTok(); t.kind == tokPunct && t.text == "," {
				p.l.next()
				continue
			}
			break
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		rows = append(rows, row)
		if t := p.l.peekTok(); t.kind == tokPunct && t.text == "," {
			p.l.next()
			continue
		}
		break
	}
	return Insert{TableName: tableName, Rows: rows}, nil
}

func (p *parser) parseDelete() (Statement, error) {
	if err := p.expectKeyword("from"); err != nil {
		return nil, err
	}
	tableName, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	cond, err := p.parseOptionalWhere()
	if err != nil {
		return nil, err
	}
	return Delete{TableName: tableName, Cond: cond}, nil
}

func (p *parser) parseOptionalWhere() (condition.Expr, error) {
	t := p.l.peekTok()
	if t.kind != tokIdent || strings.ToLower(t.text) != "where" {
		return nil, nil
	}
	p.l.next()
	return p.parseConditionOr()
}

func (p *parser) parseConditionOr() (condition.Expr, error) {
	lhs, err := p.parseConditionAnd()
	if err != nil {
		return nil, err
	}
	if t := p.l.peekTok(); t.kind == tokIdent && strings.ToLower(t.text) == "or" {
		p.l.next()
		rhs, err := p.parseConditionOr()
		if err != nil {
			return nil, err
		}
		return &condition.Or{LHS: lhs, RHS: rhs}, nil
	}
	return lhs, nil
}

func (p *parser) parseConditionAnd() (condition.Expr, error) {
	lhs, err := p.parseConditionTerm()
	if err != nil {
		return nil, err
	}
	if t := p.l.peekTok(); t.kind == tokIdent && strings.ToLower(t.text) == "and" {
		p.l.next()
		rhs, err := p.parseConditionAnd()
		if err != nil {
			return nil, err
		}
		return &condition.And{LHS: lhs, RHS: rhs}, nil
	}
	return lhs, nil
}

func (p *parser) parseConditionTerm() (condition.Expr, error) {
	if t := p.l.peekTok(); t.kind == tokPunct && t.text == "(" {
		p.l.next()
		expr, err := p.parseConditionOr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return expr, nil
	}
	column, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	op, err := p.expectCompareOp()
	if err != nil {
		return nil, err
	}
	value, err := p.expectValue()
	if err != nil {
		return nil, err
	}
	return &condition.Compare{Column: column, Op: op, Literal: value}, nil
}

func (p *parser) parseColumnDeclList() (*schema.Schema, error) {
	s := &schema.Schema{Primary: -1}
	for {
		if err := p.parseColumnDeclItem(s); err != nil {
			return nil, err
		}
		if t := p.l.peekTok(); t.kind == tokPunct && t.text == "," {
			p.l.next()
			continue
		}
		break
	}
	if s.Primary < 0 {
		return nil, cdberrors.NewSchemaMisuse("schema declares no primary key")
	}
	return s, nil
}

func (p *parser) parseColumnDeclItem(s *schema.Schema) error {
	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	if strings.ToLower(name) == "primary" {
		if err := p.expectKeyword("key"); err != nil {
			return err
		}
		if err := p.expectPunct("("); err != nil {
			return err
		}
		fieldName, err := p.expectIdent()
		if err != nil {
			return err
		}
		if err := p.expectPunct(")"); err != nil {
			return err
		}
		idx := -1
		for i, f := range s.Fields {
			if f.Name == fieldName {
				idx = i
				break
			}
		}
		if idx < 0 {
			return errNoSuchColumn(fieldName)
		}
		s.Primary = idx
		return nil
	}

	typeName, err := p.expectIdent()
	if err != nil {
		return err
	}
	field := schema.Field{Name: name}
	switch strings.ToLower(typeName) {
	case "int":
		field.Type = schema.Integer
	case "float":
		field.Type = schema.Float
	case "char":
		if err := p.expectPunct("("); err != nil {
			return err
		}
		n, err := p.expectInt()
		if err != nil {
			return err
		}
		if err := p.expectPunct(")"); err != nil {
			return err
		}
		field.Type = schema.Char
		field.Length = n
	case "text":
		field.Type = schema.Text
	default:
		return cdberrors.NewParseError("unknown column type: " + typeName)
	}
	s.Fields = append(s.Fields, field)

	for {
		t := p.l.peekTok()
		if t.kind != tokIdent {
			break
		}
		lower := strings.ToLower(t.text)
		if lower == "unique" {
			p.l.next()
			continue
		}
		if lower == "auto" {
			p.l.next()
			if err := p.expectKeyword("increment"); err != nil {
				return err
			}
			continue
		}
		break
	}
	return nil
}

func (p *parser) expectIdent() (string, error) {
	t := p.l.next()
	if t.kind != tokIdent {
		return "", errUnexpected(t)
	}
	return t.text, nil
}

func (p *parser) expectKeyword(word string) error {
	t := p.l.next()
	if t.kind != tokIdent || strings.ToLower(t.text) != word {
		return errUnexpected(t)
	}
	return nil
}

func (p *parser) expectPunct(sym string) error {
	t := p.l.next()
	if t.kind != tokPunct || t.text != sym {
		return errUnexpected(t)
	}
	return nil
}

func (p *parser) expectString() (string, error) {
	t := p.l.next()
	if t.kind != tokString {
		return "", errUnexpected(t)
	}
	return t.text, nil
}

func (p *parser) expectInt() (int, error) {
	t := p.l.next()
	if t.kind != tokInt {
		return 0, errUnexpected(t)
	}
	n, err := strconv.Atoi(t.text)
	if err != nil {
		return 0, cdberrors.NewParseError("invalid integer: " + t.text)
	}
	return n, nil
}

// expectValue accepts a string, integer, or float literal, always
// returned as its literal text for schema.FromString to decode later.
func (p *parser) expectValue() (string, error) {
	t := p.l.next()
	switch t.kind {
	case tokString, tokInt, tokFloat:
		return t.text, nil
	default:
		return "", errUnexpected(t)
	}
}

func (p *parser) expectCompareOp() (condition.Op, error) {
	t := p.l.next()
	if t.kind != tokPunct {
		return 0, errUnexpected(t)
	}
	switch t.text {
	case "=":
		return condition.EQ, nil
	case "<>":
		return condition.NE, nil
	case "<":
		return condition.LT, nil
	case "<=":
		return condition.LE, nil
	case ">":
		return condition.GT, nil
	case ">=":
		return condition.GE, nil
	default:
		return 0, errUnexpected(t)
	}
}
