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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clarkok/cdb/pkg/condition"
	"github.com/clarkok/cdb/pkg/schema"
)

func TestParseCreateTable(t *testing.T) {
	stmt, err := Parse(`create table users (id int, age int, name char(16), primary key (id))`)
	require.NoError(t, err)
	ct, ok := stmt.(CreateTable)
	require.True(t, ok)
	require.Equal(t, "users", ct.Name)
	require.Equal(t, 0, ct.Schema.Primary)
	require.Len(t, ct.Schema.Fields, 3)
	require.Equal(t, schema.Field{Name: "id", Type: schema.Integer}, ct.Schema.Fields[0])
	require.Equal(t, schema.Field{Name: "name", Type: schema.Char, Length: 16}, ct.Schema.Fields[2])
}

func TestParseCreateTableWithAttributes(t *testing.T) {
	stmt, err := Parse(`create table t (id int unique auto increment, primary key (id))`)
	require.NoError(t, err)
	ct, ok := stmt.(CreateTable)
	require.True(t, ok)
	require.Equal(t, "id", ct.Schema.Fields[0].Name)
}

func TestFormatSchemaRoundTripsThroughParseSchema(t *testing.T) {
	s := &schema.Schema{
		Fields: []schema.Field{
			{Name: "id", Type: schema.Integer},
			{Name: "score", Type: schema.Float},
			{Name: "name", Type: schema.Char, Length: 32},
		},
		Primary: 0,
	}
	text := FormatSchema(s)
	parsed, err := ParseSchema(text)
	require.NoError(t, err)
	require.Equal(t, s.Fields, parsed.Fields)
	require.Equal(t, s.Primary, parsed.Primary)
}

func TestParseDropTableAndIndex(t *testing.T) {
	stmt, err := Parse(`drop table users`)
	require.NoError(t, err)
	require.Equal(t, DropTable{Name: "users"}, stmt)

	stmt, err = Parse(`drop index idx_age`)
	require.NoError(t, err)
	require.Equal(t, DropIndex{IndexName: "idx_age"}, stmt)
}

func TestParseCreateIndex(t *testing.T) {
	stmt, err := Parse(`create index idx_age on users (age)`)
	require.NoError(t, err)
	require.Equal(t, CreateIndex{IndexName: "idx_age", TableName: "users", Column: "age"}, stmt)
}

func TestParseSelectWithWhereAndAndOr(t *testing.T) {
	stmt, err := Parse(`select id, name from users where age >= 18 and age < 30 or name = 'bob'`)
	require.NoError(t, err)
	sel, ok := stmt.(Select)
	require.True(t, ok)
	require.Equal(t, []string{"id", "name"}, sel.Columns)
	require.Equal(t, "users", sel.TableName)

	or, ok := sel.Cond.(*condition.Or)
	require.True(t, ok)
	and, ok := or.LHS.(*condition.And)
	require.True(t, ok)
	cmp, ok := and.LHS.(*condition.Compare)
	require.True(t, ok)
	require.Equal(t, "age", cmp.Column)
	require.Equal(t, condition.GE, cmp.Op)
	require.Equal(t, "18", cmp.Literal)
}

func TestParseSelectStar(t *testing.T) {
	stmt, err := Parse(`select * from users`)
	require.NoError(t, err)
	sel := stmt.(Select)
	require.Nil(t, sel.Columns)
	require.Nil(t, sel.Cond)
}

func TestParseSelectWithParenthesizedCondition(t *testing.T) {
	stmt, err := Parse(`select * from users where (age = 1 or age = 2) and name = 'a'`)
	require.NoError(t, err)
	sel := stmt.(Select)
	and, ok := sel.Cond.(*condition.And)
	require.True(t, ok)
	_, ok = and.LHS.(*condition.Or)
	require.True(t, ok)
}

func TestParseInsert(t *testing.T) {
	stmt, err := Parse(`insert into users values (1, 30, 'alice'), (2, 25, 'bob')`)
	require.NoError(t, err)
	ins, ok := stmt.(Insert)
	require.True(t, ok)
	require.Equal(t, "users", ins.TableName)
	require.Equal(t, [][]string{{"1", "30", "alice"}, {"2", "25", "bob"}}, ins.Rows)
}

func TestParseDeleteWithWhere(t *testing.T) {
	stmt, err := Parse(`delete from users where id = 1`)
	require.NoError(t, err)
	del, ok := stmt.(Delete)
	require.True(t, ok)
	require.Equal(t, "users", del.TableName)
	cmp, ok := del.Cond.(*condition.Compare)
	require.True(t, ok)
	require.Equal(t, condition.EQ, cmp.Op)
}

func TestParseQuitAndExecfile(t *testing.T) {
	stmt, err := Parse(`quit`)
	require.NoError(t, err)
	require.Equal(t, Quit{}, stmt)

	stmt, err = Parse(`execfile 'script.sql'`)
	require.NoError(t, err)
	require.Equal(t, ExecFile{Path: "script.sql"}, stmt)
}

func TestParseRejectsTrailingGarbage(t *testing.T) {
	_, err := Parse(`quit now`)
	require.Error(t, err)
}

func TestParseSchemaWithoutPrimaryKeyFails(t *testing.T) {
	_, err := ParseSchema(`id int`)
	require.Error(t, err)
}
