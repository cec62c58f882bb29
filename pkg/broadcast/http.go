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

package broadcast

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/procwise/localcluster/pkg/constants"
	"github.com/procwise/localcluster/pkg/logger"
	"github.com/procwise/localcluster/pkg/metrics"
)

// CookieHeader authenticates harness-internal HTTP requests.
const CookieHeader = "X-Cluster-Cookie"

// Resolver maps an instance identifier to the address of its command
// endpoint. The bootstrap registry implements this.
type Resolver interface {
	Resolve(node string) (string, error)
}

// CommandResponse is the member agent's reply to a command request.
type CommandResponse struct {
	Error string `json:"error,omitempty"`
}

// HTTPChannel delivers commands to member agents over their loopback HTTP
// command endpoints.
type HTTPChannel struct {
	resolver Resolver
	cookie   string
	client   *http.Client
	logger   *zap.SugaredLogger
}

// NewHTTPChannel creates a channel that authenticates with the given cookie.
func NewHTTPChannel(resolver Resolver, cookie string) *HTTPChannel {
	return &HTTPChannel{
		resolver: resolver,
		cookie:   cookie,
		client:   &http.Client{Timeout: constants.DefaultDialTimeout},
		logger:   logger.For(logger.ComponentBroadcast),
	}
}

// Invoke executes cmd on every node concurrently and collects per-instance
// results in node order. Individual failures land in the result list; Invoke
// itself only errors when the command cannot be encoded at all.
func (c *HTTPChannel) Invoke(ctx context.Context, nodes []string, cmd Command) ([]Result, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s command: %w", cmd.Type, err)
	}

	results := make([]Result, len(nodes))

	g, gctx := errgroup.WithContext(ctx)
	for i, node := range nodes {
		i, node := i, node
		g.Go(func() error {
			results[i] = Result{Node: node}
			if err := c.invokeOne(gctx, node, body); err != nil {
				results[i].Err = err.Error()
			}

			return nil
		})
	}

	// Workers never return errors; failures are per-instance results.
	_ = g.Wait()

	failed := len(Failures(results)) > 0
	metrics.RecordBroadcast(cmd.Type.String(), failed)
	if failed {
		c.logger.Warnf("Broadcast %s failed on %d of %d instances", cmd.Type, len(Failures(results)), len(nodes))
	}

	return results, nil
}

// invokeOne posts the command to a single member, retrying the resolve+dial
// while a freshly spawned member's listener is still coming up.
func (c *HTTPChannel) invokeOne(ctx context.Context, node string, body []byte) error {
	operation := func() error {
		addr, err := c.resolver.Resolve(node)
		if err != nil {
			// Not registered yet; worth retrying.
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+"/command", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(CookieHeader, c.cookie)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		var response CommandResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			return backoff.Permanent(fmt.Errorf("malformed response from %s: %w", node, err))
		}

		if resp.StatusCode != http.StatusOK || response.Error != "" {
			// The member saw the command and rejected it; retrying cannot help.
			return backoff.Permanent(fmt.Errorf("command failed on %s: %s", node, response.Error))
		}

		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = 10 * time.Second

	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}
