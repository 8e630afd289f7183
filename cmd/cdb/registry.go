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

// Command cdb is a small multi-mode binary over a single-file
// database: "open" starts an interactive shell, "exec" runs a batch
// script against it non-interactively. Modes register themselves in
// init(), the way camget/camput/camtool register theirs with
// pkg/cmdmain, collapsed here into one binary instead of many.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
)

// CommandRunner is a single cdb mode.
type CommandRunner interface {
	Usage()
	RunCommand(args []string) error
}

// UsageError marks an error that should print the mode's usage
// instead of just the message.
type UsageError string

func (e UsageError) Error() string { return string(e) }

var (
	modeCommand = make(map[string]CommandRunner)
	modeFlags   = make(map[string]*flag.FlagSet)
)

// RegisterCommand adds a mode to the dispatch table. Called from
// each mode file's init().
func RegisterCommand(mode string, makeCmd func(*flag.FlagSet) CommandRunner) {
	if _, dup := modeCommand[mode]; dup {
		panic("duplicate cdb mode: " + mode)
	}
	flags := flag.NewFlagSet(mode, flag.ContinueOnError)
	modeCommand[mode] = makeCmd(flags)
	modeFlags[mode] = flags
}

func usage(msg string) {
	if msg != "" {
		fmt.Fprintf(os.Stderr, "cdb: %s\n", msg)
	}
	fmt.Fprintf(os.Stderr, "\nUsage: cdb <mode> [args]\n\nModes:\n")
	modes := make([]string, 0, len(modeCommand))
	for mode := range modeCommand {
		modes = append(modes, mode)
	}
	sort.Strings(modes)
	for _, mode := range modes {
		fmt.Fprintf(os.Stderr, "  %s\n", mode)
	}
	os.Exit(1)
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage("no mode given")
	}

	mode := args[0]
	cmd, ok := modeCommand[mode]
	if !ok {
		usage(fmt.Sprintf("unknown mode %q", mode))
	}

	err := cmd.RunCommand(args[1:])
	if ue, isUsage := err.(UsageError); isUsage {
		fmt.Fprintf(os.Stderr, "cdb %s: %s\n", mode, ue)
		cmd.Usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "cdb %s: %v\n", mode, err)
		os.Exit(2)
	}
}
