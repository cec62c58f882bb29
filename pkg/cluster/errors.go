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

import "errors"

var (
	// ErrControllerTerminated is returned by operations on a controller that
	// has been destroyed or torn down by member-death propagation.
	ErrControllerTerminated = errors.New("cluster controller is terminated")

	// ErrOperationTimeout is returned when an operation does not complete
	// within the configured timeout. The controller's state is unaffected by
	// the caller giving up and eventually converges; callers must re-query
	// membership rather than assume the operation did or did not happen.
	ErrOperationTimeout = errors.New("cluster operation timed out")

	// ErrLaunchFailed wraps an instance spawn failure. The enclosing growth
	// call is aborted and members launched in the same attempt are torn down.
	ErrLaunchFailed = errors.New("member launch failed")

	// ErrSyncFailed wraps a broadcast step that reported per-instance errors.
	// Growth is aborted but already-spawned members stay live and linked;
	// the caller is responsible for StopMember or Destroy.
	ErrSyncFailed = errors.New("member synchronization failed")

	// ErrAssertionViolation indicates corrupted controller state, such as
	// unlinking a member whose supervision link was already broken. It is
	// not recoverable and not retried.
	ErrAssertionViolation = errors.New("cluster state assertion violated")
)
