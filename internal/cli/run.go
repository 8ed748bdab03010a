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
	"os"
	"strings"

	"github.com/google/subcommands"
	"github.com/krhancoc/fastfreeze/internal/coldstart"
	"github.com/krhancoc/fastfreeze/internal/controld"
	"github.com/krhancoc/fastfreeze/internal/criu"
	"github.com/krhancoc/fastfreeze/internal/lock"
	"github.com/krhancoc/fastfreeze/internal/logging"
	"github.com/krhancoc/fastfreeze/internal/manifest"
	"github.com/krhancoc/fastfreeze/internal/process"
	"github.com/krhancoc/fastfreeze/internal/restore"
	"github.com/krhancoc/fastfreeze/internal/store"
	"github.com/krhancoc/fastfreeze/internal/supervisor"
)

var stderr = os.Stderr

// Run implements subcommands.Command for the "run" command: it decides
// between cold-start and restore, then assumes init duties for the
// application's lifetime.
type Run struct {
	imageURL             string
	onAppReadyCmd        string
	noRestore            bool
	allowBadImageVersion bool
	preservePaths        string
	leaveStopped         bool
	detach               bool
}

func (*Run) Name() string     { return "run" }
func (*Run) Synopsis() string { return "run the application, restoring it from an image if one exists" }
func (*Run) Usage() string {
	return `run --url <image-url> [app_args...]

Run application. If a checkpoint image exists, the application is
restored. Otherwise, the application is run from scratch.

ENVS:
    FF_APP_PATH                 The PATH to use for the application
    FF_APP_LD_LIBRARY_PATH      The LD_LIBRARY_PATH to use for the application
    FF_APP_VIRT_CPUID_MASK      The CPUID mask to use
    FF_APP_INJECT_<VAR_NAME>    Additional environment variables to inject
    FF_METRICS_RECORDER         External program invoked to report metrics, as JSON
    CRIU_OPTS                   Additional arguments to pass to the checkpoint engine
    S3_CMD                      Command to access AWS S3. Defaults to 'aws s3'
    GS_CMD                      Command to access Google Storage. Defaults to 'gsutil'

EXIT CODES:
    171          A failure happened during restore, or while fetching the image manifest.
                 Retrying with --no-restore will avoid that failure
    170          A failure happened before the application was ready
    128+sig_nr   The application caught a fatal signal corresponding to sig_nr
    exit_code    The application exited with exit_code
`
}

func (r *Run) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.imageURL, "url", "", "image URL: s3://bucket/path, gs://bucket/path, or file:path")
	f.StringVar(&r.onAppReadyCmd, "on-app-ready", "", "shell command to run once the application is running")
	f.BoolVar(&r.noRestore, "no-restore", false, "always run the app from scratch, ignoring any existing image")
	f.BoolVar(&r.allowBadImageVersion, "allow-bad-image-version", false, "allow restoring images with a different manifest format version")
	f.Func("preserve-path", "dir/file to include in the checkpoint image; colon-separated, repeatable", func(s string) error {
		if r.preservePaths != "" {
			r.preservePaths += ":"
		}
		r.preservePaths += s
		return nil
	})
	f.BoolVar(&r.leaveStopped, "leave-stopped", false, "leave the application stopped after restore, useful for debugging")
	f.BoolVar(&r.detach, "detach", false, "used for testing: skip application monitoring once it is running")
}

func (r *Run) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	exitCode := args[0].(*int)

	if r.imageURL == "" {
		fmt.Fprintln(stderr, "run: --url is required")
		return subcommands.ExitUsageError
	}

	err := r.run(f.Args())
	*exitCode = exitCodeOf(err)
	if err != nil {
		logging.L().Errorf("%v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (r *Run) run(appArgs []string) error {
	preservedPaths := splitPreservedPaths(r.preservePaths)

	err := lock.WithCheckpointRestoreLock(func() error {
		return r.runLocked(appArgs, preservedPaths)
	})
	if err != nil {
		return err
	}

	if r.onAppReadyCmd != "" {
		// Fire and forget.
		if _, spawnErr := process.NewShell(r.onAppReadyCmd).Spawn(); spawnErr != nil {
			logging.L().Warnf("failed to run --on-app-ready command: %v", spawnErr)
		}
	}

	daemon, err := controld.Start()
	if err != nil {
		return WithExitCode(fmt.Errorf("failed to start control daemon: %w", err), ExitCodePreReadyFailure)
	}
	defer daemon.Stop()

	if r.detach {
		// Only used for integration tests.
		return nil
	}

	if err := supervisor.Run(); err != nil {
		return err
	}
	return nil
}

func (r *Run) runLocked(appArgs, preservedPaths []string) error {
	smoke, err := criu.SpawnSmokeCheck()
	if err != nil {
		return WithExitCode(fmt.Errorf("checkpoint engine smoke check failed to start: %w", err), ExitCodePreReadyFailure)
	}
	if err := smoke.Wait(); err != nil {
		return WithExitCode(fmt.Errorf("checkpoint engine smoke check failed: %w", err), ExitCodePreReadyFailure)
	}

	if err := process.EnsureNonConflictingPid(); err != nil {
		return WithExitCode(err, ExitCodePreReadyFailure)
	}

	st, err := store.FromURL(r.imageURL)
	if err != nil {
		return WithExitCode(err, ExitCodePreReadyFailure)
	}
	if err := st.Prepare(true); err != nil {
		return WithExitCode(err, ExitCodePreReadyFailure)
	}

	if r.noRestore {
		logging.L().Infof("Running app from scratch as specified with --no-restore")
		return coldstart.Run(coldstart.Options{
			ImageURL:       r.imageURL,
			PreservedPaths: preservedPaths,
			AppArgs:        appArgs,
		})
	}

	res, err := manifest.Resolve(r.imageURL, r.allowBadImageVersion)
	if err != nil {
		return WithExitCode(err, ExitCodeRestoreFailure)
	}

	switch res.Mode {
	case manifest.Restore:
		_, err := restore.Run(restore.Options{
			ImageURL:          r.imageURL,
			PreservedPaths:    preservedPaths,
			ShardDownloadCmds: res.ShardDownloadCmds,
			LeaveStopped:      r.leaveStopped,
		})
		return WithExitCode(err, ExitCodeRestoreFailure)
	default:
		return coldstart.Run(coldstart.Options{
			ImageURL:       r.imageURL,
			PreservedPaths: preservedPaths,
			AppArgs:        appArgs,
		})
	}
}

func splitPreservedPaths(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ":") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
