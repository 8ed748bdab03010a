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

// Package manifest implements the manifest resolver (C4): it fetches the
// remote image manifest and classifies the outcome into one of
// Present/VersionMismatch/Absent, reducing those to a RunMode.
package manifest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/krhancoc/fastfreeze/internal/logging"
	"github.com/krhancoc/fastfreeze/internal/metrics"
	"github.com/krhancoc/fastfreeze/internal/store"
)

// FormatVersion is the manifest format version this binary understands.
const FormatVersion = 1

// Manifest is the on-disk shape of manifest.json: a format version plus
// an ordered list of opaque per-shard keys passed back to the store
// adapter to build shard download commands.
type Manifest struct {
	FormatVersion int      `json:"format_version"`
	Shards        []string `json:"shards"`
}

// Mode classifies the resolver's outcome.
type Mode int

const (
	// FromScratch means no usable manifest was found (absent, or version
	// mismatch without --allow-bad-image-version): run the application
	// from scratch.
	FromScratch Mode = iota
	// Restore means a usable manifest was found: shard download commands
	// are ready to be handed to the restore pipeline.
	Restore
)

// Resolution is the result of Resolve.
type Resolution struct {
	Mode              Mode
	ShardDownloadCmds []string
}

// StoreError wraps a transport/backend failure while resolving the
// manifest; it is the only error Resolve can return. Absence and version
// mismatch are not errors -- they resolve to FromScratch.
type StoreError struct {
	URL string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error for %s: %v", e.URL, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Resolve fetches the manifest for imageURL and classifies the outcome.
// Only transport/parse errors are fatal; absence and version mismatch
// both resolve to FromScratch.
func Resolve(imageURL string, allowBadVersion bool) (*Resolution, error) {
	st, err := store.FromURL(imageURL)
	if err != nil {
		return nil, &StoreError{URL: imageURL, Err: err}
	}

	logging.L().Infof("Fetching image manifest for %s", imageURL)

	res, err := metrics.With("fetch_manifest", func() (*Resolution, error) {
		return resolveFromStore(st, allowBadVersion)
	})
	if err != nil {
		return nil, &StoreError{URL: imageURL, Err: err}
	}
	return res, nil
}

func resolveFromStore(st store.Store, allowBadVersion bool) (*Resolution, error) {
	var exists bool
	err := retry(func() error {
		ok, err := st.ManifestExists()
		if err != nil {
			return err
		}
		exists = ok
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !exists {
		logging.L().Infof("Image manifest not found, running application from scratch")
		return &Resolution{Mode: FromScratch}, nil
	}

	var raw []byte
	err = retry(func() error {
		b, err := st.FetchManifest()
		if err != nil {
			return err
		}
		raw = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	logging.L().Debugf("Image manifest found: %+v", m)

	if m.FormatVersion != FormatVersion && !allowBadVersion {
		logging.L().Infof(
			"Image manifest found, but has version %d while the expected version is %d. "+
				"You may try again with --allow-bad-image-version. Running application from scratch",
			m.FormatVersion, FormatVersion)
		return &Resolution{Mode: FromScratch}, nil
	}

	cmds := make([]string, len(m.Shards))
	for i, shard := range m.Shards {
		cmds[i] = st.ShardDownloadCmd(i, shard)
	}
	return &Resolution{Mode: Restore, ShardDownloadCmds: cmds}, nil
}

// retry wraps a manifest-store operation with a short bounded exponential
// backoff, so a transient network blip talking to S3/GCS doesn't
// immediately fail the whole run with exit code 171.
func retry(op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second
	return backoff.Retry(op, b)
}
