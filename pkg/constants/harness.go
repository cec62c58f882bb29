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

package constants

import "time"

const (
	// DefaultOperationTimeout bounds every synchronous controller operation.
	// A caller whose operation exceeds this must treat it as failed and
	// re-query membership; the controller itself eventually converges.
	DefaultOperationTimeout = 30 * time.Second

	// DefaultTeardownGracePeriod is how long a member gets to exit after
	// SIGTERM before the launcher escalates to SIGKILL.
	DefaultTeardownGracePeriod = 5 * time.Second

	// DefaultDialTimeout bounds a single connection attempt to a member's
	// command endpoint.
	DefaultDialTimeout = 2 * time.Second

	// DefaultRegistrationTTL is how long a member's loader registration
	// stays valid without a heartbeat.
	DefaultRegistrationTTL = 10 * time.Second

	// DefaultRegistryCullInterval is how often expired registrations are
	// removed from the loader registry.
	DefaultRegistryCullInterval = 2 * time.Second

	// DefaultHeartbeatInterval is how often a member agent refreshes its
	// loader registration.
	DefaultHeartbeatInterval = 2 * time.Second

	// PrefixLength is the length of a randomly generated cluster name prefix.
	PrefixLength = 8

	// LoopbackHost is the only host members are ever spawned on. The harness
	// emulates a cluster on a single machine; nothing binds beyond loopback.
	LoopbackHost = "127.0.0.1"

	// DefaultAppVersion is the version reported by local development builds
	// that were not stamped via ldflags.
	DefaultAppVersion = "0.0.0-dev"

	// AgentVersionConstraint is the semver range of member agent versions the
	// loader accepts at registration time.
	AgentVersionConstraint = ">= 0.0.0-0"

	// MailboxSize is the request buffer of the controller actor. The mailbox
	// is logically unbounded; the buffer only decouples bursts of callers
	// from the single consumer.
	MailboxSize = 128
)
