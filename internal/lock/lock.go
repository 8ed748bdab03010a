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

// Package lock provides the host-scoped advisory lock (C9) that
// serializes checkpoint/restore activity for a FastFreeze instance.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/krhancoc/fastfreeze/internal/config"
)

// WithCheckpointRestoreLock acquires the global lock, runs f, and releases
// the lock once f returns -- even if f panics. Acquisition blocks while
// another holder exists; it fails only on I/O errors.
func WithCheckpointRestoreLock(f func() error) error {
	path := config.LockPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create lock dir: %w", err)
	}

	fl := flock.New(path)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", path, err)
	}
	defer fl.Unlock()

	return f()
}
