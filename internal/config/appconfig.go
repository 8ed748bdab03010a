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

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// AppConfig is created during the run command, and updated during
// checkpoint/restore. It's useful for the checkpoint path to know the
// image_url and preserved_paths, and for restore to know the app_clock.
type AppConfig struct {
	ImageURL       string   `json:"image_url"`
	PreservedPaths *PathSet `json:"preserved_paths"`
	AppClock       int64    `json:"app_clock"`
}

// New returns a cold-start AppConfig: app_clock starts at zero.
func New(imageURL string, preservedPaths []string) *AppConfig {
	return &AppConfig{
		ImageURL:       imageURL,
		PreservedPaths: NewPathSet(preservedPaths...),
		AppClock:       0,
	}
}

// Save serializes the record to AppConfigPath(). It writes to a temporary
// file in the same directory and renames it into place, so a concurrent
// reader always observes either the previous valid content or the new one
// in full -- never a partial write.
func (c *AppConfig) Save() error {
	if err := EnsureStateDir(); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal AppConfig: %w", err)
	}
	path := AppConfigPath()
	tmp, err := os.CreateTemp(filepath.Dir(path), ".app.config.*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp AppConfig file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write AppConfig: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close AppConfig temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to install AppConfig at %s: %w", path, err)
	}
	return nil
}

// Load reads the persisted AppConfig, failing with a clear message when
// absent -- it is created during the run command.
func Load() (*AppConfig, error) {
	path := AppConfigPath()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s. It is created during the run command: %w", path, err)
	}
	defer f.Close()

	var c AppConfig
	if err := json.NewDecoder(f).Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if c.PreservedPaths == nil {
		c.PreservedPaths = NewPathSet()
	}
	return &c, nil
}
