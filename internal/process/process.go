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
	"os/exec"

	"golang.org/x/sys/unix"
)

// Process wraps a spawned child: its display string and a handle capable
// of being waited on or killed. It has no opinion on whether it is
// monitored or a daemon -- that's decided at Join time.
type Process struct {
	cmd     *exec.Cmd
	display string
}

// Pid returns the child's PID.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// String returns the process's display string.
func (p *Process) String() string {
	return p.display
}

// Wait blocks until the process exits and returns a non-nil error if it
// exited with a non-zero status or died from a signal.
func (p *Process) Wait() error {
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("%s: %w", p.display, err)
	}
	return nil
}

// Signal sends sig to the process.
func (p *Process) Signal(sig unix.Signal) error {
	return unix.Kill(p.Pid(), sig)
}

// Kill sends SIGKILL to the process, ignoring the case where it's already
// gone.
func (p *Process) Kill() {
	_ = p.Signal(unix.SIGKILL)
}

// Join transfers ownership of the process into group as a monitored
// member: wait_for_success() blocks until it (among all monitored
// members) exits successfully.
func (p *Process) Join(group *Group) {
	group.add(p, false)
}

// JoinAsDaemon transfers ownership of the process into group as a daemon:
// it is killed but not awaited when the group tears down, and its exit
// status does not gate wait_for_success().
func (p *Process) JoinAsDaemon(group *Group) {
	group.add(p, true)
}
