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

package virtclock

import "testing"

func TestWriteInitialIsZeroOffset(t *testing.T) {
	t.Setenv("FF_STATE_DIR", t.TempDir())

	if err := WriteInitial(); err != nil {
		t.Fatalf("WriteInitial: %v", err)
	}
	c, err := Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if c.OffsetNanos != 0 {
		t.Errorf("OffsetNanos = %d, want 0", c.OffsetNanos)
	}
}

func TestAdjustTimespecsMapsAppClock(t *testing.T) {
	t.Setenv("FF_STATE_DIR", t.TempDir())

	const appClock = int64(123_000_000_000)
	if err := AdjustTimespecs(appClock); err != nil {
		t.Fatalf("AdjustTimespecs: %v", err)
	}
	c, err := Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if c.OffsetNanos != appClock {
		t.Errorf("OffsetNanos = %d, want %d (the app's clock at checkpoint)", c.OffsetNanos, appClock)
	}
	if c.StartRealNanos == 0 {
		t.Errorf("StartRealNanos not set")
	}
}
