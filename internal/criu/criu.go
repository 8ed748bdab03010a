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

// Package criu wraps the external checkpoint/restore engine binary. Per
// spec.md §1 the engine itself is an external collaborator invoked as a
// subprocess in one of three modes: check, restore, dump. This package
// only knows that contract.
package criu

import (
	"os"
	"strconv"
	"strings"

	"github.com/krhancoc/fastfreeze/internal/process"
)

// engineCommand returns the external checkpoint/restore engine binary to
// invoke, defaulting to "criu" and honoring FF_CRIU_CMD for testing.
func engineCommand() string {
	if c := os.Getenv("FF_CRIU_CMD"); c != "" {
		return c
	}
	return "criu"
}

// extraOpts splits CRIU_OPTS on whitespace, per spec.md §6.
func extraOpts() []string {
	raw := strings.TrimSpace(os.Getenv("CRIU_OPTS"))
	if raw == "" {
		return nil
	}
	return strings.Fields(raw)
}

// SpawnSmokeCheck spawns the engine in "check" mode: a fast sanity check
// that the kernel/engine combination is usable, run before taking any
// other action.
func SpawnSmokeCheck() (*process.Process, error) {
	args := append([]string{engineCommand(), "check"}, extraOpts()...)
	return process.New(args...).Spawn()
}

// SpawnRestore spawns the engine in "restore" mode, configured to reparent
// the restored application root to the caller (a parent-sharing clone
// flag) and, if leaveStopped, to leave every restored process in a
// stopped state for debugging.
func SpawnRestore(leaveStopped bool) (*process.Process, error) {
	args := []string{
		engineCommand(), "restore",
		"--restore-sibling",
		"--pidfile-root-pid", strconv.Itoa(process.AppRootPID),
	}
	if leaveStopped {
		args = append(args, "--leave-stopped")
	}
	args = append(args, extraOpts()...)
	return process.New(args...).Setsid().Spawn()
}

// DumpOptions parameterizes a checkpoint's dump mode.
type DumpOptions struct {
	// LeaveRunning keeps the application running after the dump
	// completes, instead of leaving it stopped.
	LeaveRunning bool
	// Passphrase, if non-empty, encrypts the produced image.
	Passphrase string
}

// SpawnDump spawns the engine in "dump" mode against the application
// rooted at APP_ROOT_PID.
func SpawnDump(opts DumpOptions) (*process.Process, error) {
	args := []string{
		engineCommand(), "dump",
		"--tree", strconv.Itoa(process.AppRootPID),
	}
	if opts.LeaveRunning {
		args = append(args, "--leave-running")
	}
	if opts.Passphrase != "" {
		args = append(args, "--passphrase", opts.Passphrase)
	}
	args = append(args, extraOpts()...)
	return process.New(args...).Spawn()
}
