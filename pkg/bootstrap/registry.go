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

package bootstrap

import (
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/united-manufacturing-hub/expiremap/v2/pkg/expiremap"

	"github.com/procwise/localcluster/pkg/constants"
)

// Registration is one member's entry in the loader registry.
type Registration struct {
	// Node is the instance identifier ("name@host").
	Node string `json:"node"`

	// Addr is the member's command endpoint ("host:port").
	Addr string `json:"addr"`

	// Version is the member agent's version, checked against the loader's
	// accepted range at registration time.
	Version string `json:"version"`
}

// Registry tracks registered members with automatic expiration. Entries stay
// alive only as long as the member keeps heartbeating, so a wedged member
// that stopped serving commands eventually becomes unresolvable instead of
// soaking up broadcast timeouts.
type Registry struct {
	entries    *expiremap.ExpireMap[string, Registration]
	constraint *semver.Constraints
	mu         sync.Mutex
}

// NewRegistry creates a registry with the default TTL and cull interval.
func NewRegistry() (*Registry, error) {
	constraint, err := semver.NewConstraint(constants.AgentVersionConstraint)
	if err != nil {
		return nil, fmt.Errorf("invalid agent version constraint: %w", err)
	}

	return &Registry{
		entries:    expiremap.NewEx[string, Registration](constants.DefaultRegistryCullInterval, constants.DefaultRegistrationTTL),
		constraint: constraint,
	}, nil
}

// Register adds or refreshes a member entry after validating its agent
// version. Re-registration with a new address wins, so an agent restarted on
// a different port overwrites its stale entry.
func (r *Registry) Register(reg Registration) error {
	if reg.Node == "" || reg.Addr == "" {
		return fmt.Errorf("registration requires node and addr, got %+v", reg)
	}

	// Development builds carry a prerelease version and are always accepted.
	version, err := semver.NewVersion(reg.Version)
	if err != nil {
		return fmt.Errorf("member %s reported unparsable version %q: %w", reg.Node, reg.Version, err)
	}
	if ok, _ := r.constraint.Validate(version); !ok {
		return fmt.Errorf("member %s agent version %s outside accepted range %s", reg.Node, reg.Version, constants.AgentVersionConstraint)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries.Set(reg.Node, reg)

	return nil
}

// Heartbeat refreshes a member's TTL. Unknown members are an error; they must
// register first.
func (r *Registry) Heartbeat(node string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.entries.Load(node)
	if !ok {
		return fmt.Errorf("member %s is not registered", node)
	}
	r.entries.Set(node, *reg)

	return nil
}

// Resolve returns the command endpoint for an instance identifier. It
// implements broadcast.Resolver.
func (r *Registry) Resolve(node string) (string, error) {
	reg, ok := r.entries.Load(node)
	if !ok {
		return "", fmt.Errorf("member %s is not registered", node)
	}

	return reg.Addr, nil
}

// Nodes returns the identifiers of all currently registered members.
func (r *Registry) Nodes() []string {
	var nodes []string
	r.entries.Range(func(key string, value Registration) bool {
		nodes = append(nodes, value.Node)

		return true
	})

	return nodes
}

// Length returns the number of live registrations.
func (r *Registry) Length() int {
	return r.entries.Length()
}

// TTL returns how long an entry survives without a heartbeat.
func (r *Registry) TTL() time.Duration {
	return constants.DefaultRegistrationTTL
}
