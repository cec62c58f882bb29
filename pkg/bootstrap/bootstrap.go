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

// Package bootstrap turns the harness process into a network-addressable
// node exactly once. EnsureNetworkEnabled starts a loopback loader service
// where spawned members register themselves and keep their registrations
// alive; members authenticate with the process-wide shared cookie.
package bootstrap

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/procwise/localcluster/pkg/logger"
)

var (
	// networkEnabled is the double-checked idempotency guard: the atomic flag
	// answers the common "already enabled" case without locking, the mutex
	// serializes the one real initialization.
	networkEnabled atomic.Bool
	networkMu      sync.Mutex

	loader *Loader

	cookieOnce sync.Once
	cookie     string
)

// EnsureNetworkEnabled makes the local process network-addressable and starts
// the loader service. It is idempotent: all calls after the first (including
// concurrent ones) succeed immediately.
func EnsureNetworkEnabled(ctx context.Context) error {
	if networkEnabled.Load() {
		return nil
	}

	networkMu.Lock()
	defer networkMu.Unlock()

	// Re-check under the lock; a racing caller may have won.
	if networkEnabled.Load() {
		return nil
	}

	l, err := newLoader(ctx, Cookie())
	if err != nil {
		return fmt.Errorf("failed to enable network: %w", err)
	}

	loader = l
	networkEnabled.Store(true)

	logger.For(logger.ComponentBootstrap).Infof("Network enabled, loader listening on %s", l.Addr())

	return nil
}

// NetworkEnabled reports whether EnsureNetworkEnabled has completed.
func NetworkEnabled() bool {
	return networkEnabled.Load()
}

// LoaderAddr returns the loader's listen address. It panics when the network
// has not been enabled, which indicates a sequencing bug in the caller.
func LoaderAddr() string {
	if !networkEnabled.Load() {
		panic("bootstrap: LoaderAddr called before EnsureNetworkEnabled")
	}

	return loader.Addr()
}

// GetRegistry returns the loader's member registry.
func GetRegistry() *Registry {
	if !networkEnabled.Load() {
		panic("bootstrap: GetRegistry called before EnsureNetworkEnabled")
	}

	return loader.Registry()
}

// Cookie returns the process-wide shared secret members use to authenticate.
// It is taken from CLUSTER_COOKIE when set, generated once otherwise.
func Cookie() string {
	cookieOnce.Do(func() {
		cookie = os.Getenv("CLUSTER_COOKIE")
		if cookie == "" {
			cookie = uuid.NewString()
		}
	})

	return cookie
}

// freeLoopbackListener binds an ephemeral loopback port.
func freeLoopbackListener() (net.Listener, error) {
	return net.Listen("tcp", "127.0.0.1:0")
}
