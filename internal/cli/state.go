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
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/krhancoc/fastfreeze/internal/config"
)

// State implements subcommands.Command for the "state" command: it
// pretty-prints the persisted AppConfig for diagnostics.
type State struct{}

func (*State) Name() string     { return "state" }
func (*State) Synopsis() string { return "print the persisted application config" }
func (*State) Usage() string {
	return `state - print the image_url, preserved paths, and application clock
persisted by the last run or checkpoint command.
`
}

func (*State) SetFlags(*flag.FlagSet) {}

func (*State) Execute(_ context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	exitCode := args[0].(*int)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, fatalMessage(err))
		*exitCode = ExitCodePreReadyFailure
		return subcommands.ExitFailure
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		fmt.Fprintln(stderr, fatalMessage(err))
		*exitCode = ExitCodePreReadyFailure
		return subcommands.ExitFailure
	}

	*exitCode = 0
	return subcommands.ExitSuccess
}
