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

package process

import (
	"fmt"
	"os"
	"strconv"
)

const (
	// AppRootPID is the fixed low PID every cold-start and restore places
	// the application root process at, so that checkpoint images are
	// reproducible and the supervisor can signal the application
	// unambiguously. It must stay well above 1 (reserved for a container's
	// own init) and well below typical kernel ns_last_pid values.
	AppRootPID = 170

	// MinPID is the low watermark ns_last_pid is driven down to when the
	// supervisor's own PID is found to conflict with AppRootPID, so that
	// the next invocation is able to obtain a low PID for the application.
	MinPID = 2
)

// pidHelperCommand returns the external PID-namespace helper binary to
// invoke. It is a privileged helper out of this repository's scope; only
// its CLI contract (set-last-pid <pid>, serve) is assumed here.
func pidHelperCommand() string {
	if c := os.Getenv("FF_PID_HELPER"); c != "" {
		return c
	}
	return "fastfreeze-pid-inject"
}

// PidAllocationError indicates the PID-injection helper could not place a
// child at the requested PID, or that the supervisor's own PID conflicts
// with AppRootPID.
type PidAllocationError struct {
	Wanted, Got int
}

func (e *PidAllocationError) Error() string {
	if e.Got == 0 {
		return fmt.Sprintf("current pid is too high (>= %d); re-run the same command again", e.Wanted)
	}
	return fmt.Sprintf("expected to spawn at pid %d, but landed on pid %d", e.Wanted, e.Got)
}

// SetNsLastPid drives the PID namespace's ns_last_pid to pid via the
// privileged helper, so that the next fork() in the namespace allocates
// pid+1.
func SetNsLastPid(pid int) error {
	p, err := New(pidHelperCommand(), "set-last-pid", strconv.Itoa(pid)).Spawn()
	if err != nil {
		return fmt.Errorf("failed to invoke pid injection helper: %w", err)
	}
	if err := p.Wait(); err != nil {
		return fmt.Errorf("pid injection helper failed: %w", err)
	}
	return nil
}

// EnsureNonConflictingPid fails with a *PidAllocationError when the
// supervisor's own PID is not strictly less than AppRootPID -- using that
// PID for the application could otherwise collide with a PID still in use
// by the supervisor itself. As a side effect, it drives ns_last_pid back
// down to MinPID so a subsequent invocation can obtain a low PID.
func EnsureNonConflictingPid() error {
	if os.Getpid() < AppRootPID {
		return nil
	}
	_ = SetNsLastPid(MinPID)
	return &PidAllocationError{Wanted: AppRootPID}
}

// SpawnWithPID spawns cmd such that the child is created with PID
// targetPID, by first driving ns_last_pid to targetPID-1. It fails with a
// *PidAllocationError if the resulting PID is not exactly targetPID.
func SpawnWithPID(cmd *Command, targetPID int) (*Process, error) {
	if err := SetNsLastPid(targetPID - 1); err != nil {
		return nil, err
	}
	p, err := cmd.Spawn()
	if err != nil {
		return nil, err
	}
	if p.Pid() != targetPID {
		p.Kill()
		return nil, &PidAllocationError{Wanted: targetPID, Got: p.Pid()}
	}
	return p, nil
}

// SpawnPidInjectionServer spawns the helper in its "serve" mode, which
// keeps ns_last_pid pinned ahead of the kernel's own allocator for the
// duration of a restore, so concurrently-forking restored tasks don't
// race the application root PID. It is meant to be joined as a daemon.
func SpawnPidInjectionServer() (*Process, error) {
	return New(pidHelperCommand(), "serve").Spawn()
}
