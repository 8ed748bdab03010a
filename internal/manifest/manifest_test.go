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

package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir string, m Manifest) {
	t.Helper()
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), b, 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestResolveAbsentMapsToFromScratch(t *testing.T) {
	dir := t.TempDir()
	res, err := Resolve("file:"+dir, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Mode != FromScratch {
		t.Errorf("Mode = %v, want FromScratch", res.Mode)
	}
}

func TestResolvePresentMapsToRestore(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, Manifest{FormatVersion: FormatVersion, Shards: []string{"shard-0.img", "shard-1.img"}})

	res, err := Resolve("file:"+dir, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Mode != Restore {
		t.Errorf("Mode = %v, want Restore", res.Mode)
	}
	if len(res.ShardDownloadCmds) != 2 {
		t.Errorf("len(ShardDownloadCmds) = %d, want 2", len(res.ShardDownloadCmds))
	}
}

func TestResolveVersionMismatchMapsToFromScratch(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, Manifest{FormatVersion: FormatVersion + 1, Shards: []string{"shard-0.img"}})

	res, err := Resolve("file:"+dir, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Mode != FromScratch {
		t.Errorf("Mode = %v, want FromScratch on version mismatch", res.Mode)
	}
}

func TestResolveAllowBadVersionAccepts(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, Manifest{FormatVersion: FormatVersion + 1, Shards: []string{"shard-0.img"}})

	res, err := Resolve("file:"+dir, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Mode != Restore {
		t.Errorf("Mode = %v, want Restore when allowBadVersion is set", res.Mode)
	}
}
