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

// Package logging owns the process-wide logger singleton. It mirrors the
// original FastFreeze logger.rs: one line per record, prefixed with the
// command name and time elapsed since process start, mirrored to stderr
// and an optional log file.
package logging

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// StartTime is the process-wide start anchor. Tests may override it so
// that elapsed-time prefixes are deterministic.
var StartTime = time.Now()

var (
	mu     sync.Mutex
	logger *logrus.Logger
	file   *os.File
	path   string
)

type elapsedFormatter struct {
	cmdName string
}

func (f *elapsedFormatter) Format(e *logrus.Entry) ([]byte, error) {
	elapsed := e.Time.Sub(StartTime).Seconds()
	msg := fmt.Sprintf("[ff.%s] (%.3fs) %s\n", f.cmdName, elapsed, e.Message)
	return []byte(msg), nil
}

// Level maps a `-v` repeat count to a logrus level, matching the teacher's
// `--debug`/verbosity conventions: 0 is warn-and-above, each repeat opens
// up one more level.
func Level(verbosity int) logrus.Level {
	switch {
	case verbosity <= 0:
		return logrus.WarnLevel
	case verbosity == 1:
		return logrus.InfoLevel
	case verbosity == 2:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// Init installs the process-wide logger. cmdName tags every log line
// (e.g. "run", "checkpoint"). When logDir is non-empty, a log file is
// created inside it with a name that embeds a timestamp and a random
// invocation ID, so that logs from a restored process never clobber a
// prior instance's log (see MoveFile for relocating it once the state
// directory becomes available).
func Init(level logrus.Level, cmdName string, logDir string) {
	mu.Lock()
	defer mu.Unlock()

	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(&elapsedFormatter{cmdName: cmdName})
	l.SetOutput(os.Stderr)

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			l.Warnf("Failed to create log dir %s: %v", logDir, err)
		} else {
			_ = setTmpLikePermissions(logDir)
			name := fmt.Sprintf("ff-%s-%s-%d.log",
				time.Now().UTC().Format("20060102-150405"), cmdName, rand.Uint32())
			p := filepath.Join(logDir, name)
			f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				l.Warnf("Failed to create a log file at %s: %v", logDir, err)
			} else {
				file = f
				path = p
				l.AddHook(&fileHook{file: f, formatter: &elapsedFormatter{cmdName: cmdName}})
			}
		}
	}

	logger = l
}

type fileHook struct {
	file      *os.File
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *fileHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.file.Write(b)
	return err
}

func setTmpLikePermissions(dir string) error {
	// The log directory may be shared across users when FastFreeze runs
	// inside a container, so make it /tmp-like (world writable, sticky).
	return os.Chmod(dir, os.ModeSticky|0777)
}

// MoveFile renames the current log file into directory, preserving its
// content. Used once the state directory is confirmed writable.
func MoveFile(directory string) error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(directory, 0755); err != nil {
		return err
	}
	newPath := filepath.Join(directory, filepath.Base(path))
	if newPath == path {
		return nil
	}
	if err := os.Rename(path, newPath); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", path, newPath, err)
	}
	path = newPath
	return nil
}

// L returns the process-wide logger. Init must have been called first.
func L() *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		// Fall back to a bare stderr logger so a package that logs before
		// Init (e.g. in a test) doesn't nil-panic.
		logger = logrus.New()
	}
	return logger
}
