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

// Package supervisor implements the init supervisor (C7): once the
// application is running, it proxies signals to the application's root
// PID, reaps reparented orphans, and synthesizes the supervisor's own
// exit code from how the application ended.
package supervisor

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/krhancoc/fastfreeze/internal/logging"
	"github.com/krhancoc/fastfreeze/internal/process"
	"golang.org/x/sys/unix"
)

// forbidden is the set of signals the kernel does not allow a handler to
// catch or forward. SIGCHLD is proxy-excluded separately since it is how
// the reaper itself learns of child state changes.
var forbidden = map[os.Signal]bool{
	unix.SIGKILL: true,
	unix.SIGSTOP: true,
	unix.SIGFPE:  true,
	unix.SIGILL:  true,
	unix.SIGSEGV: true,
	unix.SIGBUS:  true,
}

// ExitError carries the exit code the supervisor should itself exit with,
// once the application has ended. It is always returned by Run when the
// application process exits or dies, even on an otherwise-clean exit(0),
// so that the caller has one path for both outcomes.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("application exited with code %d", e.Code)
}

// Run assumes init duties for the application rooted at
// process.AppRootPID: it proxies every forwardable signal it receives to
// that PID, reaps any other reparented child silently, and returns an
// *ExitError carrying the synthesized exit code once the application
// itself exits or dies by signal.
func Run() error {
	proxy := make(chan os.Signal, 64)
	signal.Notify(proxy, proxiable()...)
	defer signal.Stop(proxy)

	go func() {
		for sig := range proxy {
			_ = unix.Kill(process.AppRootPID, sig.(unix.Signal))
		}
	}()

	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, 0, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("wait4 failed: %w", err)
		}

		if pid != process.AppRootPID {
			// An orphaned grandchild reparented to us; reap silently.
			continue
		}

		// Kill whatever is left of the application's process group; it
		// was created with setsid() at spawn time.
		_ = unix.Kill(-process.AppRootPID, unix.SIGKILL)

		switch {
		case ws.Exited():
			logging.L().Infof("Application exited with exit_code=%d", ws.ExitStatus())
			return &ExitError{Code: ws.ExitStatus()}
		case ws.Signaled():
			logging.L().Infof("Application caught fatal signal %v", ws.Signal())
			return &ExitError{Code: 128 + int(ws.Signal())}
		}
	}
}

// proxiable lists every catchable signal except SIGCHLD and the
// kernel-forbidden set.
func proxiable() []os.Signal {
	var sigs []os.Signal
	for n := 1; n < 65; n++ {
		sig := unix.Signal(n)
		if sig == unix.SIGCHLD || forbidden[sig] {
			continue
		}
		sigs = append(sigs, sig)
	}
	return sigs
}
