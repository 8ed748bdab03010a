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

// s3Cmd returns the configured AWS CLI invocation, defaulting to "aws s3"
// per FF_APP spec's S3_CMD environment variable.
func s3Cmd() string {
	if c := os.Getenv("S3_CMD"); c != "" {
		return c
	}
	return "aws s3"
}

type s3Store struct {
	raw, bucket, key string
}

func (s *s3Store) URL() string { return s.raw }

func (s *s3Store) object(name string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, joinKey(s.key, name))
}

func (s *s3Store) ManifestExists() (bool, error) {
	cmd := exec.Command("/bin/bash", "-o", "pipefail", "-c",
		fmt.Sprintf("%s ls %s >/dev/null", s3Cmd(), s.object(ManifestFileName)))
	if err := cmd.Run(); err != nil {
		// aws s3 ls also exits 1 on auth/transport failure, indistinguishable
		// here from "not found" without parsing its stderr.
		if _, ok := err.(*exec.ExitError); ok {
			return false, nil
		}
		return false, fmt.Errorf("failed to check for manifest at %s: %w", s.URL(), err)
	}
	return true, nil
}

func (s *s3Store) FetchManifest() ([]byte, error) {
	cmd := exec.Command("/bin/bash", "-o", "pipefail", "-c",
		fmt.Sprintf("%s cp %s -", s3Cmd(), s.object(ManifestFileName)))
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest from %s: %w", s.URL(), err)
	}
	return out, nil
}

func (s *s3Store) ShardDownloadCmd(i int, shardKey string) string {
	return fmt.Sprintf("%s cp %s -", s3Cmd(), s.object(shardKey))
}

func (s *s3Store) ShardUploadCmd(i int, shardKey string) string {
	return fmt.Sprintf("%s cp - %s", s3Cmd(), s.object(shardKey))
}

func (s *s3Store) UploadManifestCmd() string {
	return fmt.Sprintf("%s cp - %s", s3Cmd(), s.object(ManifestFileName))
}

func (s *s3Store) Prepare(forWrites bool) error {
	// Nothing to provision ahead of time for S3; the bucket is assumed to
	// exist. Kept as a no-op hook so the call site doesn't special-case
	// the scheme.
	return nil
}
