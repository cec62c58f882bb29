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

package cluster

import (
	"context"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// Controller lifecycle states.
const (
	// StateStarting covers initial member creation during Create.
	StateStarting = "starting"
	// StateRunning is the normal serving state.
	StateRunning = "running"
	// StateTerminating covers member teardown during Destroy or death
	// propagation.
	StateTerminating = "terminating"
	// StateTerminated is terminal; every subsequent operation fails with
	// ErrControllerTerminated.
	StateTerminated = "terminated"
)

// Controller lifecycle events.
const (
	EventStarted       = "started"
	EventTerminate     = "terminate"
	EventTerminateDone = "terminate_done"
)

// newLifecycle builds the controller's lifecycle state machine.
func newLifecycle(log *zap.SugaredLogger) *fsm.FSM {
	return fsm.NewFSM(
		StateStarting,
		fsm.Events{
			{Name: EventStarted, Src: []string{StateStarting}, Dst: StateRunning},
			{Name: EventTerminate, Src: []string{StateStarting, StateRunning}, Dst: StateTerminating},
			{Name: EventTerminateDone, Src: []string{StateTerminating}, Dst: StateTerminated},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				log.Debugf("Controller lifecycle: %s -> %s", e.Src, e.Dst)
			},
		},
	)
}
