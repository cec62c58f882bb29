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

// Package launcher spawns isolated member processes and supervises their
// lifetime. Every launched process is linked to the launcher: its exit is
// delivered on the Deaths channel, tagged with whether the link had been
// broken beforehand. The cluster controller breaks the link before an
// intentional teardown so only unexpected deaths propagate.
package launcher

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrAlreadyUnlinked is returned by Unlink when the supervision link was
// broken before. The controller treats this as an assertion violation,
// since it indicates corrupted membership state.
var ErrAlreadyUnlinked = errors.New("supervision link already broken")

// ExitEvent is delivered on the Deaths channel when a member process exits.
type ExitEvent struct {
	Name     string
	PID      int
	ExitCode int

	// Unlinked reports whether the supervision link was broken before the
	// exit. An unlinked exit is an intentional stop; a linked one is fatal
	// to the whole cluster.
	Unlinked bool
}

// Process is the local supervision handle for one spawned member. It is used
// to link/unlink and to route the stop request; the network-level identity
// lives in the controller's Member record.
type Process struct {
	PID  int
	Name string

	unlinked atomic.Bool
}

// Unlink breaks the supervision link so the process's exit is no longer
// treated as an unexpected failure. Unlinking twice is an error.
func (p *Process) Unlink() error {
	if p.unlinked.Swap(true) {
		return ErrAlreadyUnlinked
	}

	return nil
}

// Linked reports whether the supervision link is still active.
func (p *Process) Linked() bool {
	return !p.unlinked.Load()
}

// Launcher spawns and tears down member processes.
type Launcher interface {
	// Launch starts one member named name on host, passing args as low-level
	// startup arguments, and links it to the launcher as a side effect.
	Launch(ctx context.Context, host, name string, args []string) (*Process, error)

	// Teardown stops the process behind the handle. Callers must have broken
	// the supervision link first if they do not want the exit to propagate.
	Teardown(ctx context.Context, p *Process) error

	// Deaths delivers an ExitEvent for every launched process that exits.
	Deaths() <-chan ExitEvent
}
