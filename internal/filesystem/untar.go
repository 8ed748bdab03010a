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

// Package filesystem spawns the untar/tar stages that move the
// application's filesystem in and out of the streamer's tar-fs pipe
// during restore and checkpoint.
package filesystem

import (
	"os"

	"github.com/krhancoc/fastfreeze/internal/process"
)

// Root is the filesystem root the untar/tar stages operate against. It
// is the whole root filesystem by design: FastFreeze preserves arbitrary
// application state, not just a data directory.
const Root = "/"

// SpawnUntar spawns a `tar` extraction reading from pipe and writing
// directly to Root, restoring the application's filesystem (including
// app.config.json and time.conf) before the rest of the restore pipeline
// continues. pipe is the read end of the tar-fs pipe, and its ownership
// transfers to the spawned process: the parent's copy is closed once the
// child has it.
func SpawnUntar(pipe *os.File) (*process.Process, error) {
	p, err := process.New("tar", "--xattrs", "-xf", "-", "-C", Root).
		Stdin(pipe).
		Spawn()
	process.ClosePipe(pipe)
	return p, err
}

// SpawnTar spawns a `tar` creation of paths (the caller-preserved paths
// plus the well-known state files) writing its output to pipe, for the
// checkpoint pipeline's filesystem capture stage. pipe is the write end
// of the tar-fs pipe; its ownership transfers to the spawned process and
// the parent's copy is closed right after Spawn, so the streamer sees EOF
// once tar exits.
func SpawnTar(paths []string, pipe *os.File) (*process.Process, error) {
	args := append([]string{"tar", "--xattrs", "-cf", "-", "-C", Root}, paths...)
	p, err := process.New(args...).
		Stdout(pipe).
		Spawn()
	process.ClosePipe(pipe)
	return p, err
}
