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

package launcher

import (
	"context"
	"sync"
)

// LaunchCall records one Launch invocation on the mock.
type LaunchCall struct {
	Host string
	Name string
	Args []string
}

// MockLauncher is an in-memory Launcher for tests. By default every launch
// succeeds and fabricates a process handle with a synthetic pid; behavior can
// be overridden per test with the WithXxxFunc hooks.
type MockLauncher struct {
	mu sync.Mutex

	launchFunc   func(ctx context.Context, host, name string, args []string) (*Process, error)
	teardownFunc func(ctx context.Context, p *Process) error

	launched []LaunchCall
	tornDown []*Process
	nextPID  int

	deaths chan ExitEvent
}

// NewMockLauncher creates a mock launcher.
func NewMockLauncher() *MockLauncher {
	return &MockLauncher{
		nextPID: 1000,
		deaths:  make(chan ExitEvent, 64),
	}
}

// WithLaunchFunc overrides the launch behavior.
func (m *MockLauncher) WithLaunchFunc(fn func(ctx context.Context, host, name string, args []string) (*Process, error)) *MockLauncher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.launchFunc = fn

	return m
}

// WithTeardownFunc overrides the teardown behavior.
func (m *MockLauncher) WithTeardownFunc(fn func(ctx context.Context, p *Process) error) *MockLauncher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownFunc = fn

	return m
}

// Launch records the call and fabricates a handle unless overridden.
func (m *MockLauncher) Launch(ctx context.Context, host, name string, args []string) (*Process, error) {
	m.mu.Lock()
	fn := m.launchFunc
	m.launched = append(m.launched, LaunchCall{Host: host, Name: name, Args: args})
	m.nextPID++
	pid := m.nextPID
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, host, name, args)
	}

	return &Process{PID: pid, Name: name}, nil
}

// Teardown records the call and emits the corresponding exit event, mirroring
// the real launcher's death watch.
func (m *MockLauncher) Teardown(ctx context.Context, p *Process) error {
	m.mu.Lock()
	fn := m.teardownFunc
	m.tornDown = append(m.tornDown, p)
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, p)
	}

	m.deaths <- ExitEvent{Name: p.Name, PID: p.PID, ExitCode: 0, Unlinked: !p.Linked()}

	return nil
}

// Deaths delivers exit events emitted by Teardown or Kill.
func (m *MockLauncher) Deaths() <-chan ExitEvent {
	return m.deaths
}

// Kill simulates a member dying on its own (crash or external kill).
func (m *MockLauncher) Kill(p *Process, exitCode int) {
	m.deaths <- ExitEvent{Name: p.Name, PID: p.PID, ExitCode: exitCode, Unlinked: !p.Linked()}
}

// Launched returns all recorded launch calls.
func (m *MockLauncher) Launched() []LaunchCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]LaunchCall, len(m.launched))
	copy(calls, m.launched)

	return calls
}

// TornDown returns all handles passed to Teardown.
func (m *MockLauncher) TornDown() []*Process {
	m.mu.Lock()
	defer m.mu.Unlock()

	procs := make([]*Process, len(m.tornDown))
	copy(procs, m.tornDown)

	return procs
}
