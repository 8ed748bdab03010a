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
	"testing"
	"time"
)

func sh(script string) *Command {
	return New("/bin/sh", "-c", script)
}

func TestGroupWaitForSuccess_AllClean(t *testing.T) {
	g := NewGroup()
	for _, script := range []string{"exit 0", "sleep 0.05 && exit 0", "exit 0"} {
		p, err := sh(script).Spawn()
		if err != nil {
			t.Fatalf("spawn: %v", err)
		}
		p.Join(g)
	}

	if err := g.WaitForSuccess(); err != nil {
		t.Fatalf("WaitForSuccess: %v", err)
	}
}

func TestGroupWaitForSuccess_FailurePropagates(t *testing.T) {
	g := NewGroup()
	p1, err := sh("sleep 2").Spawn()
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	p1.Join(g)

	p2, err := sh("exit 7").Spawn()
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	p2.Join(g)

	start := time.Now()
	err = g.WaitForSuccess()
	if err == nil {
		t.Fatalf("expected an error from the failing member")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("WaitForSuccess did not tear down promptly on first failure: took %v", time.Since(start))
	}
}

func TestGroupWaitForSuccess_DaemonNotAwaited(t *testing.T) {
	g := NewGroup()
	monitored, err := sh("exit 0").Spawn()
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	monitored.Join(g)

	daemon, err := sh("sleep 2").Spawn()
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	daemon.JoinAsDaemon(g)

	start := time.Now()
	if err := g.WaitForSuccess(); err != nil {
		t.Fatalf("WaitForSuccess: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("WaitForSuccess waited on a daemon member: took %v", time.Since(start))
	}
}
