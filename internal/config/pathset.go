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

package config

import (
	"encoding/json"

	"github.com/google/btree"
)

// pathItem is a btree.Item wrapping an absolute path string.
type pathItem string

func (p pathItem) Less(than btree.Item) bool {
	return p < than.(pathItem)
}

// PathSet is an ordered set of absolute paths. Order doesn't matter
// semantically (spec.md's AppConfig.preserved_paths is a set), but a
// stable iteration order keeps the persisted JSON array byte-for-byte
// reproducible across saves, which matters for tests that diff the
// AppConfig file. It is backed by a B-tree instead of a Go map for that
// reason.
type PathSet struct {
	tree *btree.BTree
}

// NewPathSet builds a PathSet from the given paths.
func NewPathSet(paths ...string) *PathSet {
	s := &PathSet{tree: btree.New(8)}
	s.AddAll(paths)
	return s
}

// Add inserts a path into the set.
func (s *PathSet) Add(path string) {
	if s.tree == nil {
		s.tree = btree.New(8)
	}
	s.tree.ReplaceOrInsert(pathItem(path))
}

// AddAll inserts every path in paths into the set.
func (s *PathSet) AddAll(paths []string) {
	for _, p := range paths {
		s.Add(p)
	}
}

// Len returns the number of paths in the set.
func (s *PathSet) Len() int {
	if s.tree == nil {
		return 0
	}
	return s.tree.Len()
}

// Has reports whether path is in the set.
func (s *PathSet) Has(path string) bool {
	if s.tree == nil {
		return false
	}
	return s.tree.Has(pathItem(path))
}

// Slice returns the paths in sorted order.
func (s *PathSet) Slice() []string {
	if s.tree == nil {
		return nil
	}
	out := make([]string, 0, s.tree.Len())
	s.tree.Ascend(func(it btree.Item) bool {
		out = append(out, string(it.(pathItem)))
		return true
	})
	return out
}

// MarshalJSON encodes the set as a sorted JSON array.
func (s *PathSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON decodes a JSON array of paths into the set.
func (s *PathSet) UnmarshalJSON(b []byte) error {
	var paths []string
	if err := json.Unmarshal(b, &paths); err != nil {
		return err
	}
	s.tree = btree.New(8)
	s.AddAll(paths)
	return nil
}
