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
	"net"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/subcommands"
	"github.com/krhancoc/fastfreeze/internal/config"
)

// Checkpoint implements subcommands.Command for the "checkpoint" client
// command: it connects to a running supervisor's control socket and
// requests a checkpoint with the daemon's default parameters.
type Checkpoint struct {
	timeout time.Duration
}

func (*Checkpoint) Name() string     { return "checkpoint" }
func (*Checkpoint) Synopsis() string { return "trigger a checkpoint of the running application" }
func (*Checkpoint) Usage() string {
	return `checkpoint - trigger a checkpoint against a running fastfreeze supervisor.
`
}

func (c *Checkpoint) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.timeout, "timeout", 10*time.Second, "how long to wait for the control socket to accept a connection")
}

func (c *Checkpoint) Execute(_ context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	exitCode := args[0].(*int)

	if err := c.run(); err != nil {
		fmt.Fprintln(stderr, fatalMessage(err))
		*exitCode = ExitCodePreReadyFailure
		return subcommands.ExitFailure
	}
	*exitCode = 0
	return subcommands.ExitSuccess
}

func (c *Checkpoint) run() error {
	conn, err := dialControlSocket(c.timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to control socket: %w", err)
	}
	defer conn.Close()

	req := []byte("now")
	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("failed to send checkpoint trigger: %w", err)
	}

	ack := make([]byte, len(req))
	if _, err := conn.Read(ack); err != nil {
		return fmt.Errorf("failed to read checkpoint acknowledgement: %w", err)
	}

	fmt.Println("Checkpoint complete")
	return nil
}

// dialControlSocket retries the connection with a bounded exponential
// backoff: the daemon may still be starting up just after `run` begins.
func dialControlSocket(timeout time.Duration) (net.Conn, error) {
	var conn net.Conn
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = timeout

	err := backoff.Retry(func() error {
		c, err := net.Dial("unix", config.SocketPath())
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, b)
	return conn, err
}
