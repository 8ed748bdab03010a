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

// Package restore implements the restore pipeline (C5): it composes the
// image streamer, shard downloaders, the untar stage, the PID-injection
// daemon, and the checkpoint/restore engine, and drives them to a running
// application.
package restore

import (
	"fmt"
	"time"

	"github.com/krhancoc/fastfreeze/internal/config"
	"github.com/krhancoc/fastfreeze/internal/criu"
	"github.com/krhancoc/fastfreeze/internal/filesystem"
	"github.com/krhancoc/fastfreeze/internal/logging"
	"github.com/krhancoc/fastfreeze/internal/process"
	"github.com/krhancoc/fastfreeze/internal/streamer"
	"github.com/krhancoc/fastfreeze/internal/virtclock"
	"golang.org/x/sys/unix"
)

// Options are the inputs to Run, gathered by the CLI from flags and the
// manifest resolver.
type Options struct {
	ImageURL          string
	PreservedPaths    []string
	ShardDownloadCmds []string
	LeaveStopped      bool
}

// Run executes the restore pipeline end to end and returns the streamer's
// transfer stats once the application is running. On any failure, it
// sends SIGKILL to the process group rooted at process.AppRootPID
// (best-effort cleanup of a partially restored application) before
// returning the error.
func Run(opts Options) (streamer.Stats, error) {
	logging.L().Infof("Restoring application%s", leaveStoppedSuffix(opts.LeaveStopped))
	start := time.Now()

	grp := process.NewGroup()

	stats, err := run(grp, opts)
	if err != nil {
		_ = unix.Kill(-process.AppRootPID, unix.SIGKILL)
		return streamer.Stats{}, err
	}

	logging.L().Infof("Application is ready, restore took %.1fs", time.Since(start).Seconds())
	return stats, nil
}

func leaveStoppedSuffix(leaveStopped bool) string {
	if leaveStopped {
		return " (leave stopped)"
	}
	return ""
}

func run(grp *process.Group, opts Options) (streamer.Stats, error) {
	img, err := streamer.SpawnServe(len(opts.ShardDownloadCmds))
	if err != nil {
		return streamer.Stats{}, fmt.Errorf("failed to spawn image streamer: %w", err)
	}
	img.Process.Join(grp)

	for i, cmd := range opts.ShardDownloadCmds {
		p, err := process.NewShell(cmd).Stdout(img.ShardPipes[i]).Spawn()
		// The downloader now holds the write end; drop the parent's copy
		// so the streamer sees EOF once the downloader's own copy closes.
		process.ClosePipe(img.ShardPipes[i])
		if err != nil {
			return streamer.Stats{}, fmt.Errorf("failed to spawn shard %d download: %w", i, err)
		}
		p.Join(grp)
	}

	logging.L().Debugf("Restoring filesystem")
	untar, err := filesystem.SpawnUntar(img.TarFSPipe)
	if err != nil {
		return streamer.Stats{}, fmt.Errorf("failed to spawn untar stage: %w", err)
	}
	if err := untar.Wait(); err != nil {
		return streamer.Stats{}, fmt.Errorf("failed to restore filesystem: %w", err)
	}
	logging.L().Debugf("Filesystem restored")

	// The filesystem is back, including the AppConfig with user-defined
	// preserved paths and the application clock. Merge in the
	// caller-provided preserved paths and save, so a subsequent checkpoint
	// sees the union.
	cfg, err := config.Load()
	if err != nil {
		return streamer.Stats{}, err
	}
	cfg.ImageURL = opts.ImageURL
	cfg.PreservedPaths.AddAll(opts.PreservedPaths)
	if err := cfg.Save(); err != nil {
		return streamer.Stats{}, err
	}

	logging.L().Debugf("Application clock: %.1fs", time.Duration(cfg.AppClock).Seconds())
	if err := virtclock.AdjustTimespecs(cfg.AppClock); err != nil {
		return streamer.Stats{}, err
	}

	// Started as a daemon: it does not exit on its own, so WaitForSuccess
	// kills it once the monitored members are done instead of awaiting it.
	logging.L().Debugf("Starting pid injection server")
	pidServer, err := process.SpawnPidInjectionServer()
	if err != nil {
		return streamer.Stats{}, fmt.Errorf("failed to start pid injection server: %w", err)
	}
	pidServer.JoinAsDaemon(grp)

	logging.L().Debugf("Continuing reading image in memory...")
	stats, err := img.Progress.WaitForStats()
	if err != nil {
		return streamer.Stats{}, err
	}
	stats.Show()

	if err := img.Progress.WaitForSocketInit(); err != nil {
		return streamer.Stats{}, err
	}

	// We become the parent of the application, as the engine is
	// configured to use a parent-sharing clone flag.
	logging.L().Debugf("Restoring processes")
	engine, err := criu.SpawnRestore(opts.LeaveStopped)
	if err != nil {
		return streamer.Stats{}, fmt.Errorf("failed to spawn restore engine: %w", err)
	}
	engine.Join(grp)

	if err := grp.WaitForSuccess(); err != nil {
		return streamer.Stats{}, err
	}

	return stats, nil
}
