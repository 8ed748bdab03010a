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

package store

import (
	"fmt"
	"os"
	"path/filepath"
)

type fileStore struct {
	raw, path string
}

func (s *fileStore) URL() string { return s.raw }

func (s *fileStore) object(name string) string {
	return filepath.Join(s.path, name)
}

func (s *fileStore) ManifestExists() (bool, error) {
	_, err := os.Stat(s.object(ManifestFileName))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check for manifest at %s: %w", s.URL(), err)
}

func (s *fileStore) FetchManifest() ([]byte, error) {
	b, err := os.ReadFile(s.object(ManifestFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest from %s: %w", s.URL(), err)
	}
	return b, nil
}

func (s *fileStore) ShardDownloadCmd(i int, shardKey string) string {
	return fmt.Sprintf("cat %q", s.object(shardKey))
}

func (s *fileStore) ShardUploadCmd(i int, shardKey string) string {
	return fmt.Sprintf("cat > %q", s.object(shardKey))
}

func (s *fileStore) UploadManifestCmd() string {
	return fmt.Sprintf("cat > %q", s.object(ManifestFileName))
}

func (s *fileStore) Prepare(forWrites bool) error {
	if !forWrites {
		return nil
	}
	if err := os.MkdirAll(s.path, 0755); err != nil {
		return fmt.Errorf("failed to prepare store at %s: %w", s.URL(), err)
	}
	return nil
}
