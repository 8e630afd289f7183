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
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clarkok/cdb/pkg/database"
	"github.com/clarkok/cdb/pkg/dbconfig"
)

func newSession(t *testing.T) (*session, *bytes.Buffer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db")
	db, err := database.Open(&dbconfig.Config{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var out bytes.Buffer
	return &session{db: db, out: &out}, &out
}

func TestRunLineCreateInsertAndSelect(t *testing.T) {
	s, out := newSession(t)

	require.NoError(t, s.runLine(`create table users (id int, age int, name char(16), primary key (id))`))
	require.NoError(t, s.runLine(`insert into users values (1, 30, 'alice'), (2, 25, 'bob')`))

	out.Reset()
	require.NoError(t, s.runLine(`select name from users where age < 28`))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Equal(t, []string{"name", "bob"}, lines)
}

func TestRunLineInsertOmittingAutoIncrementPrimary(t *testing.T) {
	s, out := newSession(t)

	require.NoError(t, s.runLine(`create table users (id int, age int, primary key (id))`))
	require.NoError(t, s.runLine(`insert into users values (40)`))

	out.Reset()
	require.NoError(t, s.runLine(`select id, age from users`))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Equal(t, []string{"id\tage", "1\t40"}, lines)
}

func TestRunLineDeleteReportsCount(t *testing.T) {
	s, out := newSession(t)

	require.NoError(t, s.runLine(`create table t (id int, primary key (id))`))
	require.NoError(t, s.runLine(`insert into t values (1), (2), (3)`))

	out.Reset()
	require.NoError(t, s.runLine(`delete from t where id = 2`))
	require.Contains(t, out.String(), "1 row(s) deleted")

	out.Reset()
	require.NoError(t, s.runLine(`select id from t`))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Equal(t, []string{"id", "1", "3"}, lines)
}

func TestRunLineDropTableRemovesIt(t *testing.T) {
	s, _ := newSession(t)

	require.NoError(t, s.runLine(`create table t (id int, primary key (id))`))
	require.NoError(t, s.runLine(`drop table t`))
	require.Error(t, s.runLine(`select id from t`))
}

func TestRunLineCreateAndDropIndex(t *testing.T) {
	s, _ := newSession(t)

	require.NoError(t, s.runLine(`create table t (id int, age int, primary key (id))`))
	require.NoError(t, s.runLine(`create index idx_age on t (age)`))
	require.NoError(t, s.runLine(`drop index idx_age`))
}

func TestRunLineQuitReturnsErrQuit(t *testing.T) {
	s, _ := newSession(t)
	err := s.runLine(`quit`)
	require.True(t, errors.Is(err, errQuit))
}

func TestRunLineBlankIsNoop(t *testing.T) {
	s, _ := newSession(t)
	require.NoError(t, s.runLine(`   `))
}
