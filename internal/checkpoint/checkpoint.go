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

// Package checkpoint implements the checkpoint pipeline driven by the
// control daemon (C8): dump the application and its filesystem, upload
// the resulting shards and manifest to the image store, and record the
// application clock for a subsequent restore.
package checkpoint

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/krhancoc/fastfreeze/internal/config"
	"github.com/krhancoc/fastfreeze/internal/criu"
	"github.com/krhancoc/fastfreeze/internal/filesystem"
	"github.com/krhancoc/fastfreeze/internal/lock"
	"github.com/krhancoc/fastfreeze/internal/logging"
	"github.com/krhancoc/fastfreeze/internal/manifest"
	"github.com/krhancoc/fastfreeze/internal/metrics"
	"github.com/krhancoc/fastfreeze/internal/process"
	"github.com/krhancoc/fastfreeze/internal/store"
	"github.com/krhancoc/fastfreeze/internal/streamer"
	"github.com/krhancoc/fastfreeze/internal/virtclock"
)

// Options parameterizes a checkpoint request. The control daemon always
// triggers with DefaultOptions: leave the application running, a single
// shard, no passphrase, and the AppConfig's own image_url.
type Options struct {
	LeaveRunning bool
	NumShards    int
	Passphrase   string
	ImageURL     string // overrides the persisted AppConfig.ImageURL when non-empty
}

// DefaultOptions are the parameters the control daemon's non-empty
// trigger byte maps to, per spec.md §4.8.
func DefaultOptions() Options {
	return Options{LeaveRunning: true, NumShards: 1}
}

// Run executes one checkpoint: dump the application via the
// checkpoint/restore engine, capture its filesystem, upload both to the
// image store, and persist the resulting AppConfig.
func Run(opts Options) error {
	if opts.NumShards <= 0 {
		opts.NumShards = 1
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	imageURL := cfg.ImageURL
	if opts.ImageURL != "" {
		imageURL = opts.ImageURL
	}

	st, err := store.FromURL(imageURL)
	if err != nil {
		return err
	}
	if err := st.Prepare(true); err != nil {
		return fmt.Errorf("failed to prepare image store for writes: %w", err)
	}

	return lock.WithCheckpointRestoreLock(func() error {
		_, err := metrics.With("checkpoint", func() (struct{}, error) {
			return struct{}{}, run(st, cfg, opts)
		})
		return err
	})
}

func run(st store.Store, cfg *config.AppConfig, opts Options) error {
	logging.L().Infof("Checkpointing application")

	if clock, err := virtclock.Current(); err != nil {
		logging.L().Warnf("failed to read virtualized clock, app_clock left stale: %v", err)
	} else {
		cfg.AppClock = clock
	}
	if err := cfg.Save(); err != nil {
		return err
	}

	grp := process.NewGroup()

	img, err := streamer.SpawnCapture(opts.NumShards)
	if err != nil {
		return fmt.Errorf("failed to spawn image streamer: %w", err)
	}
	img.Process.Join(grp)

	uploads := make([]*process.Process, opts.NumShards)
	for i := 0; i < opts.NumShards; i++ {
		key := fmt.Sprintf("shard-%d.img", i)
		p, err := process.NewShell(st.ShardUploadCmd(i, key)).
			Stdin(img.ShardPipes[i]).
			Spawn()
		// The uploader now holds the read end; drop the parent's copy so
		// the uploader is the only reader left on the streamer's shard pipe.
		process.ClosePipe(img.ShardPipes[i])
		if err != nil {
			return fmt.Errorf("failed to spawn shard %d upload: %w", i, err)
		}
		p.Join(grp)
		uploads[i] = p
	}

	// The image carries the AppConfig and time.conf next to the preserved
	// paths: restore reads both back from the untarred filesystem.
	paths := append(cfg.PreservedPaths.Slice(), config.AppConfigPath(), config.TimeConfPath())
	tar, err := filesystem.SpawnTar(paths, img.TarFSPipe)
	if err != nil {
		return fmt.Errorf("failed to spawn filesystem capture: %w", err)
	}
	tar.Join(grp)

	engine, err := criu.SpawnDump(criu.DumpOptions{LeaveRunning: opts.LeaveRunning, Passphrase: opts.Passphrase})
	if err != nil {
		return fmt.Errorf("failed to spawn dump engine: %w", err)
	}
	engine.Join(grp)

	if err := grp.WaitForSuccess(); err != nil {
		return err
	}

	stats, err := img.Progress.WaitForStats()
	if err != nil {
		return err
	}
	stats.Show()

	keys := make([]string, opts.NumShards)
	for i := range keys {
		keys[i] = fmt.Sprintf("shard-%d.img", i)
	}
	m := manifest.Manifest{FormatVersion: manifest.FormatVersion, Shards: keys}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	upload, err := process.NewShell(st.UploadManifestCmd()).
		Stdin(bytes.NewReader(b)).
		Spawn()
	if err != nil {
		return fmt.Errorf("failed to spawn manifest upload: %w", err)
	}
	if err := upload.Wait(); err != nil {
		return fmt.Errorf("failed to upload manifest: %w", err)
	}

	logging.L().Infof("Checkpoint complete")
	return nil
}
