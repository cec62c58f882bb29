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
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"github.com/procwise/localcluster/pkg/broadcast"
	"github.com/procwise/localcluster/pkg/logger"
)

// Executor applies synchronization commands to the member's local state.
// Commands arrive one HTTP request at a time, but gin handles requests
// concurrently, so applications are serialized with a mutex.
type Executor struct {
	mu        sync.Mutex
	logger    *zap.SugaredLogger
	services  *ServiceSet
	codePaths []string
	interp    *interp.Interpreter
}

// NewExecutor creates an executor with an empty service set.
func NewExecutor(log *zap.SugaredLogger) *Executor {
	return &Executor{
		logger:   log,
		services: NewServiceSet(log),
	}
}

// Services exposes the service set so member binaries can register
// application starters before the agent begins serving.
func (e *Executor) Services() *ServiceSet {
	return e.services
}

// CodePaths returns the currently configured code-search paths.
func (e *Executor) CodePaths() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]string(nil), e.codePaths...)
}

// Apply executes one command.
func (e *Executor) Apply(cmd broadcast.Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch cmd.Type {
	case broadcast.CommandSetCodePaths:
		e.codePaths = append([]string(nil), cmd.CodePaths...)
		// A new path set invalidates any interpreter built on the old one.
		e.interp = nil

		return nil

	case broadcast.CommandSetEnv:
		e.services.SetEnv(cmd.Env)

		return nil

	case broadcast.CommandStartServices:
		return e.services.Start(cmd.Services)

	case broadcast.CommandSetLogLevel:
		logger.SetLevel(cmd.LogLevel)

		return nil

	case broadcast.CommandSetMode:
		gin.SetMode(cmd.Mode)

		return nil

	case broadcast.CommandLoadFile:
		return e.loadFile(cmd.File)

	default:
		return fmt.Errorf("unknown command type %d", cmd.Type)
	}
}

// loadFile evaluates one shipped source file in the member's interpreter.
func (e *Executor) loadFile(payload *broadcast.FilePayload) error {
	if payload == nil {
		return fmt.Errorf("load-file command carried no payload")
	}

	contents, err := payload.Contents()
	if err != nil {
		return err
	}

	if e.interp == nil {
		options := interp.Options{}
		if len(e.codePaths) > 0 {
			options.GoPath = e.codePaths[0]
		}

		i := interp.New(options)
		if err := i.Use(stdlib.Symbols); err != nil {
			return fmt.Errorf("failed to initialize interpreter: %w", err)
		}

		e.interp = i
	}

	if _, err := e.interp.Eval(string(contents)); err != nil {
		return fmt.Errorf("failed to load file %s: %w", payload.Path, err)
	}

	e.logger.Infof("Loaded file %s", payload.Path)

	return nil
}
