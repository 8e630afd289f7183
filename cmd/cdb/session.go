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

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/clarkok/cdb/pkg/database"
	"github.com/clarkok/cdb/pkg/schema"
	"github.com/clarkok/cdb/pkg/sqlparser"
)

// session ties an open database to an output stream and runs parsed
// statements against it, the way the REPL and the execfile runner
// both need to.
type session struct {
	db  *database.Database
	out io.Writer
}

// errQuit signals the REPL loop to stop without being an error.
var errQuit = fmt.Errorf("quit")

// runLine parses and executes one statement. It returns errQuit when
// the statement was "quit".
func (s *session) runLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	stmt, err := sqlparser.Parse(line)
	if err != nil {
		return err
	}
	return s.execute(stmt)
}

// runFile feeds every non-blank line of path through runLine in
// order, stopping at the first error or "quit".
func (s *session) runFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if err := s.runLine(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *session) execute(stmt sqlparser.Statement) error {
	switch st := stmt.(type) {
	case sqlparser.CreateTable:
		_, err := s.db.CreateTable(st.Name, st.Schema)
		return err

	case sqlparser.DropTable:
		return s.db.DropTable(st.Name)

	case sqlparser.CreateIndex:
		return s.db.CreateIndex(st.TableName, st.Column, st.IndexName)

	case sqlparser.DropIndex:
		return s.db.DropIndex(st.IndexName)

	case sqlparser.Insert:
		tbl, err := s.db.GetTable(st.TableName)
		if err != nil {
			return err
		}
		return insertRows(tbl.Schema(), st.Rows, func(src *schema.Schema, rows [][]byte) error {
			return tbl.Insert(src, rows)
		})

	case sqlparser.Delete:
		tbl, err := s.db.GetTable(st.TableName)
		if err != nil {
			return err
		}
		removed, err := tbl.Erase(st.Cond)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%d row(s) deleted\n", removed)
		return nil

	case sqlparser.Select:
		return s.runSelect(st)

	case sqlparser.ExecFile:
		return s.runFile(st.Path)

	case sqlparser.Quit:
		return errQuit

	default:
		return fmt.Errorf("cdb: unhandled statement %T", stmt)
	}
}

func (s *session) runSelect(st sqlparser.Select) error {
	tbl, err := s.db.GetTable(st.TableName)
	if err != nil {
		return err
	}

	targetSchema := tbl.Schema()
	if st.Columns != nil {
		fields := make([]schema.Field, 0, len(st.Columns))
		for _, name := range st.Columns {
			f, _, err := tbl.Schema().Column(name)
			if err != nil {
				return err
			}
			fields = append(fields, f)
		}
		targetSchema = &schema.Schema{Fields: fields}
	}

	names := make([]string, len(targetSchema.Fields))
	for i, f := range targetSchema.Fields {
		names[i] = f.Name
	}
	fmt.Fprintln(s.out, strings.Join(names, "\t"))

	return tbl.Select(targetSchema, st.Cond, func(record []byte) error {
		cols := make([]string, len(targetSchema.Fields))
		off := 0
		for i, f := range targetSchema.Fields {
			text, err := schema.ToString(f.Type, record[off:off+f.Size()])
			if err != nil {
				return err
			}
			cols[i] = text
			off += f.Size()
		}
		fmt.Fprintln(s.out, strings.Join(cols, "\t"))
		return nil
	})
}

// insertRows converts one insert statement's literal rows into
// encoded records and hands them to insert in a single call. A row
// with exactly one fewer value than the table has columns omits the
// primary column, relying on Table.Insert's auto-increment.
func insertRows(tableSchema *schema.Schema, rows [][]string, insert func(*schema.Schema, [][]byte) error) error {
	if len(rows) == 0 {
		return nil
	}

	full := len(rows[0])
	var src *schema.Schema
	switch full {
	case len(tableSchema.Fields):
		src = tableSchema
	case len(tableSchema.Fields) - 1:
		primaryField, _ := tableSchema.PrimaryField()
		fields := make([]schema.Field, 0, full)
		for _, f := range tableSchema.Fields {
			if f.Name == primaryField.Name {
				continue
			}
			fields = append(fields, f)
		}
		src = &schema.Schema{Fields: fields}
	default:
		return fmt.Errorf("cdb: insert has %d value(s), table has %d column(s)", full, len(tableSchema.Fields))
	}

	encoded := make([][]byte, 0, len(rows))
	for _, row := range rows {
		if len(row) != len(src.Fields) {
			return fmt.Errorf("cdb: every row in one insert statement must have the same number of values")
		}
		record := make([]byte, src.RecordSize())
		off := 0
		for i, f := range src.Fields {
			buf, err := schema.FromString(f.Type, f.Length, row[i])
			if err != nil {
				return err
			}
			copy(record[off:off+f.Size()], buf)
			off += f.Size()
		}
		encoded = append(encoded, record)
	}
	return insert(src, encoded)
}
