// Copyright 2026 Procwise GmbH
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

package broadcast

import "context"

// Result is the outcome of one command on one instance. An empty Err means
// the instance trivially succeeded.
type Result struct {
	Node string
	Err  string
}

// Channel executes a command on a set of instances and reports per-instance
// results. The returned slice matches the order of nodes. A non-nil error
// means the channel itself failed before results could be collected.
type Channel interface {
	Invoke(ctx context.Context, nodes []string, cmd Command) ([]Result, error)
}

// Failures filters results down to the instances that reported errors.
// Callers treat any non-empty failure list as fatal.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Err != "" {
			failed = append(failed, r)
		}
	}

	return failed
}
