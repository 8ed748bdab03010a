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

// Package config owns the AppConfig record (C2) and the well-known
// on-disk paths the supervisor reads and writes.
package config

import (
	"os"
	"path/filepath"
)

// StateDir is the FastFreeze state directory. It may be overridden by
// FF_STATE_DIR for testing; it defaults to /var/lib/fastfreeze.
func StateDir() string {
	if d := os.Getenv("FF_STATE_DIR"); d != "" {
		return d
	}
	return "/var/lib/fastfreeze"
}

// AppConfigPath is the well-known path of the persisted AppConfig.
func AppConfigPath() string {
	return filepath.Join(StateDir(), "app.config.json")
}

// TimeConfPath is the well-known path of the virtual clock config file
// consumed by the time-virtualization preload.
func TimeConfPath() string {
	return filepath.Join(StateDir(), "time.conf")
}

// LogDir is the directory holding per-invocation log files.
func LogDir() string {
	return filepath.Join(StateDir(), "logs")
}

// SocketPath is the well-known control socket path.
func SocketPath() string {
	return filepath.Join(StateDir(), "fastfreeze.sock")
}

// LockPath is the well-known global advisory lock path (C9).
func LockPath() string {
	return filepath.Join(StateDir(), "fastfreeze.lock")
}

// EnsureStateDir creates the state directory if it doesn't exist.
func EnsureStateDir() error {
	return os.MkdirAll(StateDir(), 0755)
}
