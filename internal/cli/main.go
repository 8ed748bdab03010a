// Copyright 2024 The FastFreeze Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/krhancoc/fastfreeze/internal/config"
	"github.com/krhancoc/fastfreeze/internal/logging"
)

// version is set at build time via -ldflags, mirroring the teacher's
// runsc/version package.
var version = "dev"

// verbosity is a flag.Value that counts occurrences rather than parsing a
// number, so -v -v (or --verbose --verbose) accumulates like the
// original's from_occurrences verbosity flag instead of requiring -v 2.
type verbosity int

func (v *verbosity) String() string { return fmt.Sprintf("%d", int(*v)) }
func (v *verbosity) Set(string) error {
	*v++
	return nil
}
func (v *verbosity) IsBoolFlag() bool { return true }

// Main is the entrypoint shared by cmd/fastfreeze/main.go. It registers
// subcommands, parses flags, sets up logging, and translates the
// dispatched command's error into a process exit code exactly as
// spec.md §6 describes -- the only function in the program that calls
// os.Exit.
func Main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(new(Run), "")
	subcommands.Register(new(Checkpoint), "")
	subcommands.Register(new(State), "")

	var verbose verbosity
	flag.Var(&verbose, "verbose", "verbosity level; repeat for more detail (alias -v)")
	flag.Var(&verbose, "v", "verbosity level; repeat for more detail")
	showVersion := flag.Bool("version", false, "show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Fprintf(os.Stdout, "fastfreeze version %s\n", version)
		os.Exit(0)
	}

	cmdName := flag.Arg(0)
	logging.Init(logging.Level(int(verbose)), cmdName, config.LogDir())
	if err := config.EnsureStateDir(); err == nil {
		_ = logging.MoveFile(config.LogDir())
	}

	exitCode := 0
	status := subcommands.Execute(context.Background(), &exitCode)
	if status == subcommands.ExitUsageError {
		// Flags failed to parse or were rejected before the command's own
		// Execute had a chance to set exitCode.
		os.Exit(ExitCodePreReadyFailure)
	}
	os.Exit(exitCode)
}
