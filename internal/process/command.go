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

// Package process wraps os/exec to provide the Process & ProcessGroup
// abstraction (C1): spawning children with an optional pre-exec hook,
// joining them into a supervised group, and waiting for the whole group
// to succeed with uniform teardown semantics on failure.
package process

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/krhancoc/fastfreeze/internal/logging"
	"golang.org/x/sys/unix"
)

// Command is a thin wrapper around exec.Cmd that additionally tracks a
// human-readable display string (for logging) and whether the child
// should be placed in its own session via setsid() before exec.
type Command struct {
	inner       *exec.Cmd
	displayArgs []string
	setsid      bool
}

// New builds a Command from an argv slice. args must be non-empty.
func New(args ...string) *Command {
	if len(args) == 0 {
		panic("process.New: empty argv")
	}
	return &Command{
		inner:       exec.Command(args[0], args[1:]...),
		displayArgs: append([]string{}, args...),
	}
}

// NewShell builds a Command that runs script through bash -o pipefail -c,
// so pipelines used to assemble shard download commands fail loudly.
func NewShell(script string) *Command {
	return &Command{
		inner:       exec.Command("/bin/bash", "-o", "pipefail", "-c", script),
		displayArgs: []string{script},
	}
}

// Setsid arranges for the child to call setsid() before exec, detaching
// it into its own session. Used for the application's root process so
// that orphaned descendants land in a process group the supervisor can
// signal as a whole.
func (c *Command) Setsid() *Command {
	c.setsid = true
	c.inner.SysProcAttr = &unix.SysProcAttr{Setsid: true}
	return c
}

// Env sets the full environment for the child.
func (c *Command) Env(env []string) *Command {
	c.inner.Env = env
	return c
}

// Dir sets the child's working directory.
func (c *Command) Dir(dir string) *Command {
	c.inner.Dir = dir
	return c
}

// Stdin/Stdout/Stderr wire the child's standard streams. Passing an
// *os.File (including a pipe endpoint) transfers ownership of that
// endpoint to this command: the caller must not use it afterwards.
func (c *Command) Stdin(r io.Reader) *Command  { c.inner.Stdin = r; return c }
func (c *Command) Stdout(w io.Writer) *Command { c.inner.Stdout = w; return c }
func (c *Command) Stderr(w io.Writer) *Command { c.inner.Stderr = w; return c }

// ExtraFiles passes files to the child beyond the standard three,
// available starting at fd 3. Used to hand the image streamer its shard
// read-ends and progress/tar write-ends without going through a named
// pipe.
func (c *Command) ExtraFiles(files []*os.File) *Command {
	c.inner.ExtraFiles = files
	return c
}

// ClosePipe closes the parent's copy of a pipe endpoint once it has been
// handed to a child as Stdin/Stdout: exec.Cmd never closes an *os.File
// passed that way, so without this the parent keeps the write end alive
// and the other end of the pipe never sees EOF.
func ClosePipe(f *os.File) {
	_ = f.Close()
}

func (c *Command) displayString() string {
	return strings.Join(c.displayArgs, " ")
}

// Spawn forks/execs the command and returns a handle to the running
// child. It fails if exec fails.
func (c *Command) Spawn() (*Process, error) {
	display := c.displayString()
	if err := c.inner.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn `%s`: %w", display, err)
	}
	logging.L().Debugf("+ %s", display)
	return &Process{cmd: c.inner, display: display}, nil
}

// String returns the display form of the command, used in log messages.
func (c *Command) String() string { return c.displayString() }
