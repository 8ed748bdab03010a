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

// Package store adapts an image URL (s3://, gs://, file:) to the object
// store CLI invocations that produce/consume image bytes. Per spec.md
// §1, the object store adapters are an external collaborator: this
// package only builds the command strings and performs existence checks;
// it never speaks S3/GCS wire protocols directly.
package store

import (
	"fmt"
	"net/url"
	"strings"
)

// ManifestFileName is the name of the manifest object/file within an
// image's path prefix.
const ManifestFileName = "manifest.json"

// Store is the per-scheme adapter used by the manifest resolver (C4) and
// the restore pipeline (C5).
type Store interface {
	// ManifestExists reports whether a manifest is present at this
	// store's URL. A non-nil error indicates a genuine transport
	// failure, distinct from the manifest simply being absent.
	ManifestExists() (bool, error)

	// FetchManifest downloads and returns the raw manifest bytes. Only
	// called once ManifestExists has reported true.
	FetchManifest() ([]byte, error)

	// ShardDownloadCmd returns the shell command which, when run, writes
	// shard i's bytes to stdout.
	ShardDownloadCmd(i int, shardKey string) string

	// UploadManifestCmd returns the shell command which, when fed the
	// manifest bytes on stdin, installs it at this store's URL.
	UploadManifestCmd() string

	// ShardUploadCmd returns the shell command which, when fed shard i's
	// bytes on stdin, uploads it to this store.
	ShardUploadCmd(i int, shardKey string) string

	// Prepare readies the store for upcoming writes (e.g. warming a
	// bucket connection). forWrites distinguishes a checkpoint's need
	// to write from a read-only restore.
	Prepare(forWrites bool) error

	// URL returns the store's base URL, used in error messages.
	URL() string
}

// FromURL selects a store adapter from the URL scheme: s3://, gs://, or
// file:.
func FromURL(imageURL string) (Store, error) {
	switch {
	case strings.HasPrefix(imageURL, "s3://"):
		bucket, key, err := splitBucketURL(imageURL, "s3://")
		if err != nil {
			return nil, err
		}
		return &s3Store{raw: imageURL, bucket: bucket, key: key}, nil

	case strings.HasPrefix(imageURL, "gs://"):
		bucket, key, err := splitBucketURL(imageURL, "gs://")
		if err != nil {
			return nil, err
		}
		return &gsStore{raw: imageURL, bucket: bucket, key: key}, nil

	case strings.HasPrefix(imageURL, "file:"):
		path := strings.TrimPrefix(imageURL, "file:")
		return &fileStore{raw: imageURL, path: path}, nil

	default:
		u, err := url.Parse(imageURL)
		if err != nil {
			return nil, fmt.Errorf("invalid image URL %q: %w", imageURL, err)
		}
		return nil, fmt.Errorf("unsupported image URL scheme %q (expected s3://, gs://, or file:)", u.Scheme)
	}
}

func splitBucketURL(imageURL, prefix string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(imageURL, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid image URL %q: missing bucket name", imageURL)
	}
	bucket = parts[0]
	if len(parts) == 2 {
		key = parts[1]
	}
	return bucket, key, nil
}

func joinKey(key, name string) string {
	if key == "" {
		return name
	}
	return strings.TrimSuffix(key, "/") + "/" + name
}
