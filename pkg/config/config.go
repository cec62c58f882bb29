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

package config

import (
	"fmt"
	"time"

	"github.com/tiendc/go-deepcopy"
	"gopkg.in/yaml.v3"

	"github.com/procwise/localcluster/pkg/constants"
)

// Options is the configuration captured once at controller creation. It is
// immutable afterwards; the controller deep-copies it in so later mutation by
// the caller cannot leak into cluster state.
type Options struct {
	// Applications are started on every member, in the given order, after the
	// bootstrap services.
	Applications []string `yaml:"applications"`

	// Environment holds per-service environment overrides keyed by logical
	// service name. Overrides win over a service's currently loaded
	// environment on key conflict.
	Environment map[string]map[string]string `yaml:"environment"`

	// Files are extra source files every member loads after startup.
	Files []string `yaml:"files"`

	// Name is used to derive the member name prefix when Prefix is empty.
	Name string `yaml:"name"`

	// Prefix explicitly fixes the member name prefix. When both Name and
	// Prefix are empty a random 8-character lowercase token is generated.
	Prefix string `yaml:"prefix"`

	// CodePaths are the controller's code-search paths, distributed to every
	// new member before anything else.
	CodePaths []string `yaml:"codePaths"`

	// OperationTimeout bounds every synchronous controller operation.
	// Zero means constants.DefaultOperationTimeout.
	OperationTimeout time.Duration `yaml:"operationTimeout"`
}

// UnmarshalYAML decodes options, accepting the timeout in time.ParseDuration
// notation ("30s", "1m"). The yaml package cannot parse duration strings
// into time.Duration on its own.
func (o *Options) UnmarshalYAML(value *yaml.Node) error {
	type rawOptions struct {
		Applications     []string                     `yaml:"applications"`
		Environment      map[string]map[string]string `yaml:"environment"`
		Files            []string                     `yaml:"files"`
		Name             string                       `yaml:"name"`
		Prefix           string                       `yaml:"prefix"`
		CodePaths        []string                     `yaml:"codePaths"`
		OperationTimeout string                       `yaml:"operationTimeout"`
	}

	var raw rawOptions
	if err := value.Decode(&raw); err != nil {
		return err
	}

	o.Applications = raw.Applications
	o.Environment = raw.Environment
	o.Files = raw.Files
	o.Name = raw.Name
	o.Prefix = raw.Prefix
	o.CodePaths = raw.CodePaths

	if raw.OperationTimeout != "" {
		timeout, err := time.ParseDuration(raw.OperationTimeout)
		if err != nil {
			return fmt.Errorf("invalid operationTimeout %q: %w", raw.OperationTimeout, err)
		}
		o.OperationTimeout = timeout
	}

	return nil
}

// Clone returns a deep copy of the options.
func (o Options) Clone() Options {
	var clone Options
	if err := deepcopy.Copy(&clone, &o); err != nil {
		// Options only contains maps, slices, and scalars; a copy failure
		// indicates memory corruption rather than a recoverable condition.
		panic(fmt.Sprintf("failed to deep copy options: %v", err))
	}

	return clone
}

// Timeout returns the effective operation timeout.
func (o Options) Timeout() time.Duration {
	if o.OperationTimeout > 0 {
		return o.OperationTimeout
	}

	return constants.DefaultOperationTimeout
}
