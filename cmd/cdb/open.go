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
	"io"
	"os"

	"github.com/chzyer/readline"

	"github.com/clarkok/cdb/pkg/database"
	"github.com/clarkok/cdb/pkg/dbconfig"
)

func init() {
	RegisterCommand("open", func(flags *flag.FlagSet) CommandRunner {
		cmd := &openCmd{}
		flags.BoolVar(&cmd.cached, "cache", true, "use the LRU page cache instead of the uncached accessor")
		flags.IntVar(&cmd.cacheLines, "cache-lines", 0, "page cache capacity in 1 MiB cache lines (0 uses the default)")
		return cmd
	})
}

// openCmd implements "cdb open <file>": opens (bootstrapping on
// first run) the named database and drives an interactive prompt
// against it until "quit" or Ctrl-D.
type openCmd struct {
	cached     bool
	cacheLines int
}

func (c *openCmd) Usage() {
	fmt.Fprintln(os.Stderr, "usage: cdb open [-cache] [-cache-lines n] <database-file>")
}

func (c *openCmd) RunCommand(args []string) error {
	if len(args) != 1 {
		return UsageError("open takes exactly one database file")
	}

	db, err := database.Open(&dbconfig.Config{
		Path:           args[0],
		CachedAccessor: c.cached,
		CacheLines:     c.cacheLines,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	rl, err := readline.New("cdb> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	s := &session{db: db, out: os.Stdout}
	for {
		line, err := rl.Readline()
		if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.runLine(line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}
