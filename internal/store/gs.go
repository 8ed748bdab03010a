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
	"os/exec"
)

// gsCmd returns the configured Google Storage CLI invocation, defaulting
// to "gsutil" per the GS_CMD environment variable.
func gsCmd() string {
	if c := os.Getenv("GS_CMD"); c != "" {
		return c
	}
	return "gsutil"
}

type gsStore struct {
	raw, bucket, key string
}

func (s *gsStore) URL() string { return s.raw }

func (s *gsStore) object(name string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, joinKey(s.key, name))
}

func (s *gsStore) ManifestExists() (bool, error) {
	cmd := exec.Command("/bin/bash", "-o", "pipefail", "-c",
		fmt.Sprintf("%s -q stat %s", gsCmd(), s.object(ManifestFileName)))
	if err := cmd.Run(); err != nil {
		// gsutil stat also exits 1 on auth/transport failure, indistinguishable
		// here from "not found" without parsing its stderr.
		if _, ok := err.(*exec.ExitError); ok {
			return false, nil
		}
		return false, fmt.Errorf("failed to check for manifest at %s: %w", s.URL(), err)
	}
	return true, nil
}

func (s *gsStore) FetchManifest() ([]byte, error) {
	cmd := exec.Command("/bin/bash", "-o", "pipefail", "-c",
		fmt.Sprintf("%s cp %s -", gsCmd(), s.object(ManifestFileName)))
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest from %s: %w", s.URL(), err)
	}
	return out, nil
}

func (s *gsStore) ShardDownloadCmd(i int, shardKey string) string {
	return fmt.Sprintf("%s cp %s -", gsCmd(), s.object(shardKey))
}

func (s *gsStore) ShardUploadCmd(i int, shardKey string) string {
	return fmt.Sprintf("%s cp - %s", gsCmd(), s.object(shardKey))
}

func (s *gsStore) UploadManifestCmd() string {
	return fmt.Sprintf("%s cp - %s", gsCmd(), s.object(ManifestFileName))
}

func (s *gsStore) Prepare(forWrites bool) error {
	return nil
}
