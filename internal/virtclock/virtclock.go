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

// Package virtclock writes the configuration file consumed by the
// user-space time-virtualization preload (C3), so that the application
// observes a continuous monotonic/boottime clock across a checkpoint gap.
package virtclock

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/krhancoc/fastfreeze/internal/config"
)

// Config is the on-disk shape of time.conf: the nanosecond offset added to
// CLOCK_MONOTONIC/CLOCK_BOOTTIME reads, anchored to the wall-clock real
// time it was computed against.
type Config struct {
	OffsetNanos   int64 `json:"offset_ns"`
	StartRealNanos int64 `json:"start_real_ns"`
}

func write(c Config) error {
	if err := config.EnsureStateDir(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	path := config.TimeConfPath()
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// WriteInitial writes a zero offset anchored to now. Called on cold start.
func WriteInitial() error {
	return write(Config{OffsetNanos: 0, StartRealNanos: time.Now().UnixNano()})
}

// AdjustTimespecs rewrites time.conf so that subsequent clock reads from
// the virtualized application are continuous across the checkpoint gap:
// the new wall-real time is mapped to the same monotonic value the
// application observed at checkpoint (appClockNanos).
func AdjustTimespecs(appClockNanos int64) error {
	return write(Config{OffsetNanos: appClockNanos, StartRealNanos: time.Now().UnixNano()})
}

// Read loads the current time.conf, mostly useful for tests and
// diagnostics.
func Read() (Config, error) {
	var c Config
	b, err := os.ReadFile(config.TimeConfPath())
	if err != nil {
		return c, err
	}
	err = json.Unmarshal(b, &c)
	return c, err
}

// Current returns the virtualized monotonic/boottime clock value the
// application observes right now: the persisted offset plus however much
// wall-clock time has elapsed since it was anchored. Used to refresh
// AppConfig.AppClock at checkpoint time.
func Current() (int64, error) {
	c, err := Read()
	if err != nil {
		return 0, err
	}
	elapsed := time.Now().UnixNano() - c.StartRealNanos
	return c.OffsetNanos + elapsed, nil
}
