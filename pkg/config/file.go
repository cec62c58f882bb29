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
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/procwise/localcluster/pkg/env"
)

// FullConfig is the top-level harness configuration read by the binary.
type FullConfig struct {
	// InitialMembers is the member count passed to Create at startup.
	InitialMembers int `yaml:"initialMembers"`

	// MetricsPort is where /metrics is served; 0 disables the endpoint.
	MetricsPort int `yaml:"metricsPort"`

	Options Options `yaml:"options"`
}

// LoadFromFile parses a harness config file. Unknown fields are rejected so
// typos fail loudly instead of being silently dropped.
func LoadFromFile(path string) (FullConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FullConfig{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return parse(data)
}

// LoadFromEnv builds a config from environment variables alone, used when no
// config file is given. INITIAL_MEMBERS and METRICS_PORT are recognized.
func LoadFromEnv() (FullConfig, error) {
	members, err := env.GetAsInt("INITIAL_MEMBERS", false, 0)
	if err != nil {
		return FullConfig{}, err
	}

	port, err := env.GetAsInt("METRICS_PORT", false, 0)
	if err != nil {
		return FullConfig{}, err
	}

	return FullConfig{InitialMembers: members, MetricsPort: port}, nil
}

func parse(data []byte) (FullConfig, error) {
	var cfg FullConfig

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil {
		return FullConfig{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.InitialMembers < 0 {
		return FullConfig{}, fmt.Errorf("initialMembers must not be negative, got %d", cfg.InitialMembers)
	}

	return cfg, nil
}
