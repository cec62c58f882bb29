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
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/procwise/localcluster/pkg/logger"
	"github.com/procwise/localcluster/pkg/metrics"
)

// Loader is the boot/code-loading service members talk to: they register
// here at startup, heartbeat to stay resolvable, and the controller's
// broadcast channel resolves their command endpoints through the registry.
type Loader struct {
	registry *Registry
	server   *http.Server
	addr     string
	logger   *zap.SugaredLogger
}

func newLoader(ctx context.Context, cookie string) (*Loader, error) {
	registry, err := NewRegistry()
	if err != nil {
		return nil, err
	}

	listener, err := freeLoopbackListener()
	if err != nil {
		return nil, err
	}

	l := &Loader{
		registry: registry,
		addr:     listener.Addr().String(),
		logger:   logger.For(logger.ComponentBootstrap),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(l.authenticate(cookie))

	router.POST("/register", l.handleRegister)
	router.POST("/heartbeat/:node", l.handleHeartbeat)
	router.GET("/resolve/:node", l.handleResolve)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	l.server = &http.Server{
		Handler:     router,
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		if err := l.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Errorf("Loader server failed: %v", err)
			metrics.IncErrorCount(metrics.ComponentBootstrap, "loader")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = l.server.Shutdown(shutdownCtx)
	}()

	return l, nil
}

// Addr returns the loader's listen address.
func (l *Loader) Addr() string {
	return l.addr
}

// Registry returns the member registry.
func (l *Loader) Registry() *Registry {
	return l.registry
}

// authenticate rejects requests that do not carry the shared cookie. The
// health endpoint stays open for probes.
func (l *Loader) authenticate(cookie string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()

			return
		}

		if c.GetHeader("X-Cluster-Cookie") != cookie {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid cookie"})

			return
		}

		c.Next()
	}
}

func (l *Loader) handleRegister(c *gin.Context) {
	var reg Registration
	if err := c.ShouldBindJSON(&reg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	// Only loopback members are acceptable; the harness never reaches beyond
	// the local host.
	host, _, err := net.SplitHostPort(reg.Addr)
	if err != nil || !net.ParseIP(host).IsLoopback() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "member address must be loopback"})

		return
	}

	if err := l.registry.Register(reg); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})

		return
	}

	l.logger.Infof("Registered member %s at %s (agent %s)", reg.Node, reg.Addr, reg.Version)
	c.JSON(http.StatusOK, gin.H{"status": "registered"})
}

func (l *Loader) handleHeartbeat(c *gin.Context) {
	node := c.Param("node")
	if err := l.registry.Heartbeat(node); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (l *Loader) handleResolve(c *gin.Context) {
	node := c.Param("node")

	addr, err := l.registry.Resolve(node)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, gin.H{"node": node, "addr": addr})
}
