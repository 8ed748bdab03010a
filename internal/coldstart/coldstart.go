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

// Package coldstart implements the cold-start pipeline (C6): it
// initializes the virtual clock and system-wide virtualization, then
// spawns the application under the fixed root PID.
package coldstart

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/krhancoc/fastfreeze/internal/config"
	"github.com/krhancoc/fastfreeze/internal/logging"
	"github.com/krhancoc/fastfreeze/internal/process"
	"github.com/krhancoc/fastfreeze/internal/virtclock"
)

// Options are the inputs to Run, gathered by the CLI from flags.
type Options struct {
	ImageURL       string
	PreservedPaths []string
	AppArgs        []string
}

// Run saves the initial AppConfig, initializes time virtualization, and
// spawns the application at process.AppRootPID.
func Run(opts Options) error {
	if len(opts.AppArgs) == 0 {
		return fmt.Errorf("no application command given to run from scratch")
	}

	cfg := config.New(opts.ImageURL, opts.PreservedPaths)
	if err := cfg.Save(); err != nil {
		return err
	}

	if err := virtclock.WriteInitial(); err != nil {
		return err
	}
	if err := enableSystemWideVirtualization(); err != nil {
		return err
	}

	cmd := process.New(opts.AppArgs...).Env(appEnv())
	cmd.Setsid()

	if _, err := process.SpawnWithPID(cmd, process.AppRootPID); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	logging.L().Infof("Application is ready, started from scratch")
	return nil
}

// appEnv builds the application's environment: the supervisor's own
// environment, with FF_APP_PATH/FF_APP_LD_LIBRARY_PATH substituted in as
// PATH/LD_LIBRARY_PATH, and every FF_APP_INJECT_<VAR> re-exposed as <VAR>.
func appEnv() []string {
	const (
		pathVar   = "FF_APP_PATH"
		ldPathVar = "FF_APP_LD_LIBRARY_PATH"
		injectPfx = "FF_APP_INJECT_"
	)

	env := make([]string, 0, len(os.Environ()))
	for _, kv := range os.Environ() {
		key := strings.SplitN(kv, "=", 2)[0]
		if key == pathVar || key == ldPathVar || strings.HasPrefix(key, injectPfx) {
			continue
		}
		env = append(env, kv)
	}

	if path, ok := os.LookupEnv(pathVar); ok {
		env = append(env, "PATH="+path)
	}
	if ldPath, ok := os.LookupEnv(ldPathVar); ok {
		env = append(env, "LD_LIBRARY_PATH="+ldPath)
	}
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], injectPfx) {
			continue
		}
		name := strings.TrimPrefix(parts[0], injectPfx)
		env = append(env, name+"="+parts[1])
	}

	return env
}

// virtCPUIDMaskVar is read by the virtualization enabler below so the
// CPUID masking layer matches the application's declared requirements.
const virtCPUIDMaskVar = "FF_APP_VIRT_CPUID_MASK"

// virtEnableCommand is the external tool that installs system-wide time
// and CPUID virtualization, defaulting to "fastfreeze-virt-enable" and
// overridable with FF_VIRT_ENABLE_CMD for testing.
func virtEnableCommand() string {
	if c := os.Getenv("FF_VIRT_ENABLE_CMD"); c != "" {
		return c
	}
	return "fastfreeze-virt-enable"
}

// enableSystemWideVirtualization enables CPUID masking and time
// preloading configuration. It is idempotent: running it again on an
// already-virtualized host is a no-op for the external tool, not this
// function's concern. It must not fail silently -- a non-zero exit from
// the enabler is always surfaced.
func enableSystemWideVirtualization() error {
	args := []string{virtEnableCommand()}
	if mask := os.Getenv(virtCPUIDMaskVar); mask != "" {
		args = append(args, "--cpuid-mask", mask)
	}
	cmd := exec.Command(args[0], args[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to enable system-wide virtualization: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}
