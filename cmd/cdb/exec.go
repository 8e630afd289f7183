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
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/clarkok/cdb/pkg/database"
	"github.com/clarkok/cdb/pkg/dbconfig"
)

func init() {
	RegisterCommand("exec", func(flags *flag.FlagSet) CommandRunner {
		cmd := &execCmd{}
		flags.BoolVar(&cmd.cached, "cache", true, "use the LRU page cache instead of the uncached accessor")
		flags.IntVar(&cmd.cacheLines, "cache-lines", 0, "page cache capacity in 1 MiB cache lines (0 uses the default)")
		return cmd
	})
}

// execCmd implements "cdb exec <file> <script>": runs every
// statement in script against file non-interactively, then persists
// and closes the database.
type execCmd struct {
	cached     bool
	cacheLines int
}

func (c *execCmd) Usage() {
	fmt.Fprintln(os.Stderr, "usage: cdb exec [-cache] [-cache-lines n] <database-file> <script-file>")
}

func (c *execCmd) RunCommand(args []string) error {
	if len(args) != 2 {
		return UsageError("exec takes a database file and a script file")
	}

	db, err := database.Open(&dbconfig.Config{
		Path:           args[0],
		CachedAccessor: c.cached,
		CacheLines:     c.cacheLines,
	})
	if err != nil {
		return err
	}

	s := &session{db: db, out: os.Stdout}
	runErr := s.runFile(args[1])
	if runErr != nil && errors.Is(runErr, errQuit) {
		runErr = nil
	}

	if closeErr := db.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}
	return runErr
}
