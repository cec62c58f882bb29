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

// Package broadcast fans a closed set of synchronization commands out to
// cluster members and collects per-instance results. The command set is a
// deliberate enum rather than an arbitrary remote-invocation surface: the
// controller only ever needs these six operations to bring a fresh member in
// line with its own state.
package broadcast

import (
	"bytes"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/gzip"
)

// CommandType identifies one synchronization command.
type CommandType int

const (
	// CommandSetCodePaths distributes the controller's code-search paths.
	CommandSetCodePaths CommandType = iota
	// CommandSetEnv distributes per-service environment maps.
	CommandSetEnv
	// CommandStartServices ensures the named services are started, in order.
	CommandStartServices
	// CommandSetLogLevel distributes the current logging verbosity.
	CommandSetLogLevel
	// CommandSetMode distributes the controller's runtime mode flag.
	CommandSetMode
	// CommandLoadFile ships one source file for the member to load.
	CommandLoadFile
)

// String returns the wire name of the command type.
func (t CommandType) String() string {
	switch t {
	case CommandSetCodePaths:
		return "set-code-paths"
	case CommandSetEnv:
		return "set-env"
	case CommandStartServices:
		return "start-services"
	case CommandSetLogLevel:
		return "set-log-level"
	case CommandSetMode:
		return "set-mode"
	case CommandLoadFile:
		return "load-file"
	default:
		return "unknown"
	}
}

// Command is one synchronization command. Only the field matching Type is
// meaningful; the rest stay zero.
type Command struct {
	Type CommandType `json:"type"`

	CodePaths []string                     `json:"codePaths,omitempty"`
	Env       map[string]map[string]string `json:"env,omitempty"`
	Services  []string                     `json:"services,omitempty"`
	LogLevel  string                       `json:"logLevel,omitempty"`
	Mode      string                       `json:"mode,omitempty"`
	File      *FilePayload                 `json:"file,omitempty"`
}

// FilePayload carries one source file, gzip-compressed and checksummed so a
// truncated or corrupted transfer is caught before the member interprets it.
type FilePayload struct {
	Path     string `json:"path"`
	Data     []byte `json:"data"`
	Checksum uint64 `json:"checksum"`
}

// NewFilePayload compresses contents for transfer.
func NewFilePayload(path string, contents []byte) (*FilePayload, error) {
	var buf bytes.Buffer

	w := gzip.NewWriter(&buf)
	if _, err := w.Write(contents); err != nil {
		return nil, fmt.Errorf("failed to compress file %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress file %s: %w", path, err)
	}

	return &FilePayload{
		Path:     path,
		Data:     buf.Bytes(),
		Checksum: xxhash.Sum64(contents),
	}, nil
}

// Contents decompresses the payload and verifies its checksum.
func (p *FilePayload) Contents() ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(p.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress file %s: %w", p.Path, err)
	}
	defer func() { _ = r.Close() }()

	contents, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress file %s: %w", p.Path, err)
	}

	if sum := xxhash.Sum64(contents); sum != p.Checksum {
		return nil, fmt.Errorf("checksum mismatch for file %s: got %x, want %x", p.Path, sum, p.Checksum)
	}

	return contents, nil
}
