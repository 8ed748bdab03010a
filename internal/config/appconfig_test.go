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
	"os"
	"path/filepath"
	"testing"
)

func TestAppConfigSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("FF_STATE_DIR", t.TempDir())

	cfg := New("s3://bucket/image", []string{"/var/lib/app", "/etc/app.conf"})
	cfg.AppClock = 42
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ImageURL != cfg.ImageURL {
		t.Errorf("ImageURL = %q, want %q", loaded.ImageURL, cfg.ImageURL)
	}
	if loaded.AppClock != 42 {
		t.Errorf("AppClock = %d, want 42", loaded.AppClock)
	}
	if loaded.PreservedPaths.Len() != 2 || !loaded.PreservedPaths.Has("/etc/app.conf") {
		t.Errorf("PreservedPaths = %v, want the two saved paths", loaded.PreservedPaths.Slice())
	}
}

func TestAppConfigSaveIsAtomic(t *testing.T) {
	t.Setenv("FF_STATE_DIR", t.TempDir())

	cfg := New("file:/tmp/image", nil)
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(StateDir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("leftover temp file after Save: %s", e.Name())
		}
	}
}

func TestPreservedPathUnion(t *testing.T) {
	t.Setenv("FF_STATE_DIR", t.TempDir())

	cfg := New("file:/tmp/image", []string{"/a"})
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	loaded.PreservedPaths.AddAll([]string{"/b", "/a"})
	if loaded.PreservedPaths.Len() != 2 {
		t.Errorf("union PreservedPaths.Len() = %d, want 2 (dedup of /a)", loaded.PreservedPaths.Len())
	}
}
