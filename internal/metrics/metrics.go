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

// Package metrics times named operations and reports them through
// FF_METRICS_RECORDER, an external program invoked with a JSON blob as
// its first argument, fire-and-forget. This is the Go counterpart of the
// original `with_metrics` helper.
package metrics

import (
	"encoding/json"
	"os"
	"os/exec"
	"time"

	"github.com/krhancoc/fastfreeze/internal/logging"
)

// With runs op, then reports its outcome to the metrics recorder (if
// FF_METRICS_RECORDER is configured) as
// {"event": name, "duration_ms": n, "error": msg?}. The report is best
// effort: failures to invoke the recorder are logged, never propagated.
func With[T any](name string, op func() (T, error)) (T, error) {
	start := time.Now()
	result, err := op()

	fields := map[string]any{
		"event":       name,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	report(fields)
	return result, err
}

func report(fields map[string]any) {
	cmd := os.Getenv("FF_METRICS_RECORDER")
	if cmd == "" {
		return
	}
	b, err := json.Marshal(fields)
	if err != nil {
		logging.L().Warnf("failed to marshal metrics event: %v", err)
		return
	}
	// Fire and forget: the recorder's own exit status is not our concern.
	go func() {
		if err := exec.Command(cmd, string(b)).Run(); err != nil {
			logging.L().Debugf("metrics recorder %q failed: %v", cmd, err)
		}
	}()
}
