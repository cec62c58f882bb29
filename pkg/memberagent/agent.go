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

// Package memberagent runs inside a member process. It registers the member
// with the controller's loader, keeps the registration alive with
// heartbeats, and serves the synchronization commands the controller
// broadcasts.
package memberagent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/procwise/localcluster/pkg/bootstrap"
	"github.com/procwise/localcluster/pkg/broadcast"
	"github.com/procwise/localcluster/pkg/constants"
	"github.com/procwise/localcluster/pkg/logger"
	"github.com/procwise/localcluster/pkg/metrics"
	"github.com/procwise/localcluster/pkg/version"
)

// Config carries what a member needs to join its cluster, handed over on
// the command line by the launcher.
type Config struct {
	// Name is the member's unique name (prefix plus ordinal).
	Name string
	// Host is the loopback address the member binds to.
	Host string
	// LoaderAddr is the controller's loader endpoint.
	LoaderAddr string
	// AllowedHosts restricts which addresses the member may bind.
	AllowedHosts []string
	// Cookie authenticates harness-internal traffic.
	Cookie string
}

// Node returns the member's instance identifier.
func (c Config) Node() string {
	return fmt.Sprintf("%s@%s", c.Name, c.Host)
}

func (c Config) validate() error {
	if c.Name == "" {
		return errors.New("member name must not be empty")
	}
	if c.LoaderAddr == "" {
		return errors.New("loader address must not be empty")
	}

	allowed := false
	for _, h := range c.AllowedHosts {
		if h == c.Host {
			allowed = true

			break
		}
	}
	if !allowed {
		return fmt.Errorf("host %s is not in the allowed host list %v", c.Host, c.AllowedHosts)
	}

	return nil
}

// Agent is one member's harness-facing side.
type Agent struct {
	cfg      Config
	logger   *zap.SugaredLogger
	executor *Executor
	client   *http.Client
	addr     string
}

// NewAgent validates the configuration and prepares the agent. Run starts
// it.
func NewAgent(cfg Config) (*Agent, error) {
	if cfg.Host == "" {
		cfg.Host = constants.LoopbackHost
	}
	if len(cfg.AllowedHosts) == 0 {
		cfg.AllowedHosts = []string{constants.LoopbackHost}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log := logger.For(logger.ComponentAgent).With("member", cfg.Name)

	return &Agent{
		cfg:      cfg,
		logger:   log,
		executor: NewExecutor(log),
		client:   &http.Client{Timeout: constants.DefaultDialTimeout},
	}, nil
}

// Run serves the agent until ctx is cancelled. It brings up the command
// endpoint, registers with the loader, and then heartbeats for the life of
// the process.
func (a *Agent) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", net.JoinHostPort(a.cfg.Host, "0"))
	if err != nil {
		return fmt.Errorf("failed to bind command endpoint: %w", err)
	}
	a.addr = listener.Addr().String()

	server := &http.Server{
		Handler:     a.router(),
		ReadTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := a.register(ctx); err != nil {
		return err
	}

	a.logger.Infof("Member %s serving commands on %s", a.cfg.Node(), a.addr)

	ticker := time.NewTicker(constants.DefaultHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-serveErr:
			return fmt.Errorf("command server failed: %w", err)
		case <-ticker.C:
			if err := a.heartbeat(ctx); err != nil {
				a.logger.Warnf("Heartbeat failed: %v", err)
				metrics.IncErrorCount(metrics.ComponentAgent, a.cfg.Name)
			}
		}
	}
}

// Addr returns the command endpoint address. Empty until Run has bound it.
func (a *Agent) Addr() string {
	return a.addr
}

func (a *Agent) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/command", func(c *gin.Context) {
		if c.GetHeader(broadcast.CookieHeader) != a.cfg.Cookie {
			c.JSON(http.StatusUnauthorized, broadcast.CommandResponse{Error: "invalid cookie"})

			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, broadcast.CommandResponse{Error: "unreadable request body"})

			return
		}

		var cmd broadcast.Command
		if err := json.Unmarshal(body, &cmd); err != nil {
			c.JSON(http.StatusBadRequest, broadcast.CommandResponse{Error: "malformed command"})

			return
		}

		if err := a.executor.Apply(cmd); err != nil {
			a.logger.Warnf("Command %s failed: %v", cmd.Type, err)
			c.JSON(http.StatusUnprocessableEntity, broadcast.CommandResponse{Error: err.Error()})

			return
		}

		c.JSON(http.StatusOK, broadcast.CommandResponse{})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}

// register announces the member to the loader, retrying until the loader is
// reachable or ctx expires. The loader may come up concurrently with a batch
// of members, so transient refusals are expected.
func (a *Agent) register(ctx context.Context) error {
	registration := bootstrap.Registration{
		Node:    a.cfg.Node(),
		Addr:    a.addr,
		Version: version.GetAppVersion(),
	}

	body, err := json.Marshal(registration)
	if err != nil {
		return fmt.Errorf("failed to encode registration: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = 10 * time.Second

	operation := func() error {
		return a.post(ctx, "/register", body)
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("registration with loader %s failed: %w", a.cfg.LoaderAddr, err)
	}

	return nil
}

func (a *Agent) heartbeat(ctx context.Context) error {
	return a.post(ctx, "/heartbeat/"+a.cfg.Node(), nil)
}

func (a *Agent) post(ctx context.Context, path string, body []byte) error {
	url := "http://" + a.cfg.LoaderAddr + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(broadcast.CookieHeader, a.cfg.Cookie)

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("loader returned status %d for %s", resp.StatusCode, path)
	}

	return nil
}
