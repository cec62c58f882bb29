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

import (
	"context"
	"sync"
)

// Invocation records one Invoke call on the mock channel.
type Invocation struct {
	Nodes   []string
	Command Command
}

// MockChannel is an in-memory Channel for tests. Every invocation trivially
// succeeds on every node unless an invokeFunc hook is installed.
type MockChannel struct {
	mu sync.Mutex

	invokeFunc  func(ctx context.Context, nodes []string, cmd Command) ([]Result, error)
	invocations []Invocation
}

// NewMockChannel creates a mock broadcast channel.
func NewMockChannel() *MockChannel {
	return &MockChannel{}
}

// WithInvokeFunc overrides the invocation behavior.
func (m *MockChannel) WithInvokeFunc(fn func(ctx context.Context, nodes []string, cmd Command) ([]Result, error)) *MockChannel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invokeFunc = fn

	return m
}

// Invoke records the call and succeeds on every node unless overridden.
func (m *MockChannel) Invoke(ctx context.Context, nodes []string, cmd Command) ([]Result, error) {
	m.mu.Lock()
	fn := m.invokeFunc
	m.invocations = append(m.invocations, Invocation{Nodes: append([]string(nil), nodes...), Command: cmd})
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, nodes, cmd)
	}

	results := make([]Result, len(nodes))
	for i, node := range nodes {
		results[i] = Result{Node: node}
	}

	return results, nil
}

// Invocations returns all recorded invocations.
func (m *MockChannel) Invocations() []Invocation {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]Invocation, len(m.invocations))
	copy(calls, m.invocations)

	return calls
}
