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

package supervisor

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestProxiableExcludesForbiddenAndSigchld(t *testing.T) {
	sigs := proxiable()

	seen := map[unix.Signal]bool{}
	for _, s := range sigs {
		seen[s.(unix.Signal)] = true
	}

	if seen[unix.SIGCHLD] {
		t.Errorf("proxiable() includes SIGCHLD, should be excluded")
	}
	for sig := range forbidden {
		if seen[sig.(unix.Signal)] {
			t.Errorf("proxiable() includes forbidden signal %v", sig)
		}
	}
	if !seen[unix.SIGTERM] || !seen[unix.SIGHUP] {
		t.Errorf("proxiable() should include ordinary forwardable signals like SIGTERM/SIGHUP")
	}
}

func TestExitErrorMessage(t *testing.T) {
	err := &ExitError{Code: 137}
	if got, want := err.Error(), "application exited with code 137"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
