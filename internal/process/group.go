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
	"sync"

	"github.com/krhancoc/fastfreeze/internal/logging"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// Group is a collection of supervised children (C1's ProcessGroup). Each
// member is tagged monitored or daemon at Join time. WaitForSuccess
// blocks until every monitored member has exited with status 0; any
// non-zero exit or signal death triggers teardown of the remaining
// members and returns the first error encountered.
type Group struct {
	mu       sync.Mutex
	members  []*Process
	isDaemon []bool
}

// NewGroup returns an empty process group.
func NewGroup() *Group {
	return &Group{}
}

func (g *Group) add(p *Process, daemon bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members = append(g.members, p)
	g.isDaemon = append(g.isDaemon, daemon)
}

type memberResult struct {
	proc *Process
	err  error
}

// WaitForSuccess reaps members as they exit. On the first monitored
// member reporting a non-zero exit or signal death, it sends SIGTERM then
// SIGKILL to the remaining members, drains them, and returns the first
// failure. Daemons are killed but their wait results are discarded.
func (g *Group) WaitForSuccess() error {
	g.mu.Lock()
	members := append([]*Process{}, g.members...)
	isDaemon := append([]bool{}, g.isDaemon...)
	g.mu.Unlock()

	monitored := make([]*Process, 0, len(members))
	daemons := make([]*Process, 0, len(members))
	for i, m := range members {
		if isDaemon[i] {
			daemons = append(daemons, m)
		} else {
			monitored = append(monitored, m)
		}
	}

	results := make(chan memberResult, len(monitored))
	for _, m := range monitored {
		m := m
		go func() { results <- memberResult{proc: m, err: m.Wait()} }()
	}

	seen := map[*Process]bool{}
	var firstErr error
	for len(seen) < len(monitored) {
		r := <-results
		seen[r.proc] = true
		if r.err != nil && firstErr == nil {
			firstErr = r.err
			break
		}
	}

	if firstErr == nil {
		// Every monitored member exited cleanly; daemons are killed
		// without being awaited.
		var eg errgroup.Group
		for _, d := range daemons {
			d := d
			eg.Go(func() error { d.Kill(); return nil })
		}
		_ = eg.Wait()
		return nil
	}

	logging.L().Debugf("process group teardown due to: %v", firstErr)

	// Every monitored member already has a goroutine blocked in m.Wait()
	// started above; signal the ones we haven't seen exit yet and let
	// those goroutines reap them rather than calling Wait() a second time,
	// which would race with the first call on the same *exec.Cmd.
	var eg errgroup.Group
	for _, m := range monitored {
		m := m
		if seen[m] {
			continue
		}
		eg.Go(func() error {
			_ = m.Signal(unix.SIGTERM)
			m.Kill()
			return nil
		})
	}
	for _, d := range daemons {
		d := d
		eg.Go(func() error { d.Kill(); return nil })
	}
	_ = eg.Wait()

	for len(seen) < len(monitored) {
		r := <-results
		seen[r.proc] = true
	}

	return firstErr
}

// Kill sends SIGKILL to every member of the group, best effort.
func (g *Group) Kill() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.members {
		m.Kill()
	}
}
