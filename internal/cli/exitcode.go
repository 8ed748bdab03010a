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

// Package cli wires the fastfreeze subcommands (run, checkpoint, state)
// to google/subcommands, the same dispatch library and SetFlags/Execute
// shape the teacher uses in runsc/cli. The version is printed by the
// top-level -version flag, not by a subcommand.
package cli

import (
	"errors"
	"fmt"

	"github.com/krhancoc/fastfreeze/internal/supervisor"
)

// Per spec.md §6.
const (
	ExitCodeRestoreFailure  = 171
	ExitCodePreReadyFailure = 170
)

// ExitCoder annotates an error with the process exit code it should
// resolve to, the Go counterpart of the original `anyhow::Context<ExitCode>`
// idiom: business logic returns a plain error, and exactly one place
// (Main) translates it to os.Exit.
type ExitCoder struct {
	Code int
	Err  error
}

func (e *ExitCoder) Error() string { return e.Err.Error() }
func (e *ExitCoder) Unwrap() error { return e.Err }

// WithExitCode wraps err with code, unless err is nil.
func WithExitCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return &ExitCoder{Code: code, Err: err}
}

// exitCodeOf resolves the process exit code for err: an *ExitCoder's own
// code, a *supervisor.ExitError's application-derived code, or
// ExitCodePreReadyFailure as the catch-all for anything else (a failure
// before the application was ever ready).
func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var ec *ExitCoder
	if errors.As(err, &ec) {
		return ec.Code
	}
	var se *supervisor.ExitError
	if errors.As(err, &se) {
		return se.Code
	}
	return ExitCodePreReadyFailure
}

func fatalMessage(err error) string {
	return fmt.Sprintf("fastfreeze: %v", err)
}
