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

package memberagent

import (
	"go.uber.org/zap"

	"github.com/procwise/localcluster/pkg/logger"
)

// StartFunc boots one service with its configured environment.
type StartFunc func(env map[string]string) error

// ServiceSet tracks the member's named services, their environments, and
// which of them have been started. Start is idempotent per service; the
// controller re-broadcasts the bootstrap services to every fresh batch.
type ServiceSet struct {
	logger   *zap.SugaredLogger
	starters map[string]StartFunc
	env      map[string]map[string]string
	started  map[string]bool
}

// NewServiceSet creates a set with the built-in service starters.
func NewServiceSet(log *zap.SugaredLogger) *ServiceSet {
	s := &ServiceSet{
		logger:   log,
		starters: make(map[string]StartFunc),
		env:      make(map[string]map[string]string),
		started:  make(map[string]bool),
	}

	s.Register("logging", func(env map[string]string) error {
		if level, ok := env["level"]; ok {
			logger.SetLevel(level)
		}

		return nil
	})
	s.Register("metrics", func(env map[string]string) error {
		return nil
	})

	return s
}

// Register installs a starter for a named service, replacing any previous
// one.
func (s *ServiceSet) Register(name string, start StartFunc) {
	s.starters[name] = start
}

// SetEnv replaces the environment of each listed service.
func (s *ServiceSet) SetEnv(env map[string]map[string]string) {
	for service, vars := range env {
		clone := make(map[string]string, len(vars))
		for k, v := range vars {
			clone[k] = v
		}
		s.env[service] = clone
	}
}

// Env returns the configured environment of one service.
func (s *ServiceSet) Env(service string) map[string]string {
	return s.env[service]
}

// Start boots the named services in the given order. Already-started
// services are skipped. Services without a registered starter only have
// their start recorded; members do not need to know every application the
// harness user loads into them.
func (s *ServiceSet) Start(services []string) error {
	for _, name := range services {
		if s.started[name] {
			continue
		}

		if start, ok := s.starters[name]; ok {
			if err := start(s.env[name]); err != nil {
				return err
			}
		}

		s.started[name] = true
		s.logger.Debugf("Service %s started", name)
	}

	return nil
}

// Started reports whether the named service has been started.
func (s *ServiceSet) Started(name string) bool {
	return s.started[name]
}
