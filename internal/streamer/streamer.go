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

// Package streamer wraps the external image streamer binary (serve mode
// during restore, capture mode during checkpoint). Per spec.md §1 the
// streamer is an external collaborator; this package only knows its pipe
// and progress-channel contract, not its internals.
package streamer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/krhancoc/fastfreeze/internal/logging"
	"github.com/krhancoc/fastfreeze/internal/process"
)

func streamerCommand() string {
	if c := os.Getenv("FF_IMAGE_STREAMER_CMD"); c != "" {
		return c
	}
	return "fastfreeze-image-streamer"
}

// Stats summarizes the bytes moved through a restore, surfaced to
// metrics once the streamer finishes reading its inputs into memory.
type Stats struct {
	ShardBytes []int64       `json:"shard_bytes"`
	Duration   time.Duration `json:"-"`
}

// Show logs the stats at info level, mirroring the original `Stats::show`.
func (s Stats) Show() {
	var total int64
	for _, b := range s.ShardBytes {
		total += b
	}
	logging.L().Infof("Received %d bytes across %d shards in %.1fs",
		total, len(s.ShardBytes), s.Duration.Seconds())
}

// Progress is the readable side of the streamer's progress channel: a
// stream of newline-delimited JSON control messages.
type Progress struct {
	r     *os.File
	lines *bufio.Scanner
}

type progressMsg struct {
	Type  string `json:"type"`
	Stats *Stats `json:"stats,omitempty"`
}

// WaitForStats blocks until the streamer reports it has finished reading
// its shard inputs into memory, returning the resulting byte counts.
func (p *Progress) WaitForStats() (Stats, error) {
	start := time.Now()
	for p.lines.Scan() {
		var msg progressMsg
		if err := json.Unmarshal(p.lines.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Type == "stats" && msg.Stats != nil {
			msg.Stats.Duration = time.Since(start)
			return *msg.Stats, nil
		}
	}
	return Stats{}, fmt.Errorf("image streamer closed progress channel before reporting stats: %w", p.lines.Err())
}

// WaitForSocketInit blocks until the streamer reports its restore socket
// is ready to accept the checkpoint/restore engine's connection.
func (p *Progress) WaitForSocketInit() error {
	for p.lines.Scan() {
		var msg progressMsg
		if err := json.Unmarshal(p.lines.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Type == "socket_ready" {
			return nil
		}
	}
	return fmt.Errorf("image streamer closed progress channel before reporting socket readiness: %w", p.lines.Err())
}

// Streamer is a spawned image streamer instance along with the pipe
// endpoints the caller owns: one write end per shard (fed by the download
// commands), one read end of the tar-fs pipe (fed to the untar stage),
// and the progress channel.
type Streamer struct {
	Process    *process.Process
	ShardPipes []*os.File
	TarFSPipe  *os.File
	Progress   *Progress
}

// SpawnServe spawns the streamer in serve mode for a restore with
// numShards shard inputs. The returned Streamer's ShardPipes and
// TarFSPipe are the ends the caller writes/reads; the streamer's own ends
// are passed as extra file descriptors and closed in the parent once
// spawned.
func SpawnServe(numShards int) (*Streamer, error) {
	var toClose []*os.File
	defer func() {
		for _, f := range toClose {
			f.Close()
		}
	}()

	shardReads := make([]*os.File, numShards)
	shardWrites := make([]*os.File, numShards)
	for i := 0; i < numShards; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("failed to create shard pipe %d: %w", i, err)
		}
		shardReads[i] = r
		shardWrites[i] = w
		toClose = append(toClose, r)
	}

	tarRead, tarWrite, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create tar-fs pipe: %w", err)
	}
	toClose = append(toClose, tarWrite)

	progRead, progWrite, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create progress pipe: %w", err)
	}
	toClose = append(toClose, progWrite)

	extraFiles := append(append([]*os.File{}, shardReads...), tarWrite, progWrite)

	// fd 3 is the first extra file; shard fds come first, then tar, then
	// progress, matching the order extraFiles was built in.
	shardFDs := make([]string, numShards)
	for i := range shardFDs {
		shardFDs[i] = strconv.Itoa(3 + i)
	}
	tarFD := strconv.Itoa(3 + numShards)
	progFD := strconv.Itoa(3 + numShards + 1)

	args := []string{
		streamerCommand(), "serve",
		"--shard-fds", strings.Join(shardFDs, ","),
		"--tar-fd", tarFD,
		"--progress-fd", progFD,
	}

	p, err := process.New(args...).ExtraFiles(extraFiles).Spawn()
	if err != nil {
		return nil, err
	}

	return &Streamer{
		Process:    p,
		ShardPipes: shardWrites,
		TarFSPipe:  tarRead,
		Progress:   &Progress{r: progRead, lines: bufio.NewScanner(progRead)},
	}, nil
}

// SpawnCapture spawns the streamer in capture mode for a checkpoint with
// numShards shard outputs. The returned Streamer's ShardPipes are read
// ends fed to the upload commands; TarFSPipe is the write end the
// filesystem capture stage writes into.
func SpawnCapture(numShards int) (*Streamer, error) {
	var toClose []*os.File
	defer func() {
		for _, f := range toClose {
			f.Close()
		}
	}()

	shardReads := make([]*os.File, numShards)
	shardWrites := make([]*os.File, numShards)
	for i := 0; i < numShards; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("failed to create shard pipe %d: %w", i, err)
		}
		shardReads[i] = r
		shardWrites[i] = w
		toClose = append(toClose, w)
	}

	tarRead, tarWrite, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create tar-fs pipe: %w", err)
	}
	toClose = append(toClose, tarRead)

	progRead, progWrite, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create progress pipe: %w", err)
	}
	toClose = append(toClose, progWrite)

	extraFiles := append(append([]*os.File{}, shardWrites...), tarRead, progWrite)

	shardFDs := make([]string, numShards)
	for i := range shardFDs {
		shardFDs[i] = strconv.Itoa(3 + i)
	}
	tarFD := strconv.Itoa(3 + numShards)
	progFD := strconv.Itoa(3 + numShards + 1)

	args := []string{
		streamerCommand(), "capture",
		"--shard-fds", strings.Join(shardFDs, ","),
		"--tar-fd", tarFD,
		"--progress-fd", progFD,
	}

	p, err := process.New(args...).ExtraFiles(extraFiles).Spawn()
	if err != nil {
		return nil, err
	}

	return &Streamer{
		Process:    p,
		ShardPipes: shardReads,
		TarFSPipe:  tarWrite,
		Progress:   &Progress{r: progRead, lines: bufio.NewScanner(progRead)},
	}, nil
}
