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

// Package controld implements the control daemon (C8): a background
// goroutine owning a Unix stream socket at a well-known path, accepting
// checkpoint trigger requests while the application runs. This is the Go
// counterpart of the original epoll-based FastFreezeDaemon in
// ff_socket.rs; net.Listener's own accept loop and per-connection
// goroutines take the place of the manual epoll/stop-pipe poller.
package controld

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/krhancoc/fastfreeze/internal/checkpoint"
	"github.com/krhancoc/fastfreeze/internal/config"
	"github.com/krhancoc/fastfreeze/internal/logging"
)

// maxRequestSize bounds a single trigger request, per spec.md §6.
const maxRequestSize = 1024

// Daemon is a running control socket listener.
type Daemon struct {
	ln   net.Listener
	wg   sync.WaitGroup
	stop chan struct{}
}

// Start binds the control socket at config.SocketPath, removing a stale
// socket file left by a prior instance, and begins accepting connections
// in the background.
func Start() (*Daemon, error) {
	path := config.SocketPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}

	d := &Daemon{ln: ln, stop: make(chan struct{})}
	d.wg.Add(1)
	go d.acceptLoop()
	return d, nil
}

func (d *Daemon) acceptLoop() {
	defer d.wg.Done()
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			select {
			case <-d.stop:
				return
			default:
				logging.L().Warnf("control socket accept failed: %v", err)
				return
			}
		}
		d.wg.Add(1)
		go d.handle(conn)
	}
}

func (d *Daemon) handle(conn net.Conn) {
	defer d.wg.Done()
	defer conn.Close()

	buf := make([]byte, maxRequestSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			logging.L().Debugf("control socket: triggering checkpoint (%d bytes received)", n)
			if cpErr := checkpoint.Run(checkpoint.DefaultOptions()); cpErr != nil {
				logging.L().Warnf("checkpoint triggered over control socket failed: %v", cpErr)
			}
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				logging.L().Debugf("control socket connection read failed: %v", err)
			}
			return
		}
	}
}

// Stop closes the listener and waits for in-flight connections to drain.
func (d *Daemon) Stop() {
	close(d.stop)
	d.ln.Close()
	d.wg.Wait()
	_ = os.Remove(config.SocketPath())
}
