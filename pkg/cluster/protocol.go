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

package cluster

import (
	"context"
	"fmt"
	"os"

	"github.com/procwise/localcluster/pkg/broadcast"
	"github.com/procwise/localcluster/pkg/logger"
	"github.com/procwise/localcluster/pkg/metrics"
)

// bootstrapServices are started on every fresh member before any
// application services, in this order.
var bootstrapServices = []string{"logging", "metrics"}

// defaultServiceEnvironment seeds the per-service env maps distributed to
// new members; Options.Environment entries override these key by key.
func defaultServiceEnvironment() map[string]map[string]string {
	return map[string]map[string]string{
		"logging": {"level": logger.Level()},
	}
}

// buildEnvironment merges the override env maps into the base ones. Values
// in overrides win on key collisions; services present only in one input are
// carried through unchanged. Neither input is mutated.
func buildEnvironment(base, overrides map[string]map[string]string) map[string]map[string]string {
	merged := make(map[string]map[string]string, len(base)+len(overrides))

	for service, env := range base {
		clone := make(map[string]string, len(env))
		for k, v := range env {
			clone[k] = v
		}
		merged[service] = clone
	}

	for service, env := range overrides {
		target, ok := merged[service]
		if !ok {
			target = make(map[string]string, len(env))
			merged[service] = target
		}
		for k, v := range env {
			target[k] = v
		}
	}

	return merged
}

// memberArgs builds the command-line arguments handed to every member
// process so it can reach back to the loader.
func (c *Controller) memberArgs() []string {
	return []string{
		"--loader", c.loaderAddr,
		"--allowed-hosts", c.host,
		"--cookie", c.cookie,
	}
}

// addMembers launches amount member processes and runs the synchronization
// sequence against them. Names are prefix plus a strictly increasing
// ordinal; ordinals are consumed permanently, so names never repeat within a
// controller even across removals.
//
// A launch failure rolls the whole batch back: already-launched members are
// unlinked and torn down, the ordinal counter is left untouched, and the
// member list is unchanged. A synchronization failure keeps the batch in the
// member list (the processes are alive and linked) and reports ErrSyncFailed
// so the caller can stop or destroy them.
func (c *Controller) addMembers(ctx context.Context, amount int) ([]Member, error) {
	if amount == 0 {
		return nil, nil
	}

	launched := make([]Member, 0, amount)

	for i := 1; i <= amount; i++ {
		name := fmt.Sprintf("%s%d", c.state.prefix, c.state.index+i)

		proc, err := c.launcher.Launch(ctx, c.host, name, c.memberArgs())
		if err != nil {
			c.rollback(ctx, launched)

			return nil, fmt.Errorf("%w: member %s: %v", ErrLaunchFailed, name, err)
		}

		launched = append(launched, Member{
			Proc: proc,
			Node: fmt.Sprintf("%s@%s", name, c.host),
		})
	}

	// The batch is live and linked from here on. Record it before syncing so
	// that a sync failure leaves the members stoppable through the normal
	// selectors.
	c.state.index += amount
	c.state.members = append(c.state.members, launched...)
	metrics.SetLiveMembers(len(c.state.members))
	metrics.AddAllocatedMembers(amount)

	if err := c.synchronize(ctx, launched); err != nil {
		return launched, err
	}

	c.logger.Debugf("Added %d members to cluster %q", amount, c.state.prefix)

	return launched, nil
}

// rollback tears down a partially launched batch. None of these members ever
// entered the member list, so their deaths must not look like failures.
func (c *Controller) rollback(ctx context.Context, launched []Member) {
	for _, m := range launched {
		_ = m.Proc.Unlink()
		if err := c.launcher.Teardown(ctx, m.Proc); err != nil {
			c.logger.Warnf("Rollback teardown of member %s failed: %v", m.Node, err)
		}
	}
}

// synchronize runs the fixed command sequence that brings fresh members up
// to the controller's state: code paths, merged environments, bootstrap
// services, log level, framework mode, the configured application services,
// and finally the preloaded files.
func (c *Controller) synchronize(ctx context.Context, members []Member) error {
	nodes := make([]string, 0, len(members))
	for _, m := range members {
		nodes = append(nodes, m.Node)
	}

	opts := c.state.options

	if len(opts.CodePaths) > 0 {
		cmd := broadcast.Command{Type: broadcast.CommandSetCodePaths, CodePaths: opts.CodePaths}
		if err := c.invokeStep(ctx, nodes, cmd); err != nil {
			return err
		}
	}

	env := buildEnvironment(c.serviceEnv, opts.Environment)
	if len(env) > 0 {
		cmd := broadcast.Command{Type: broadcast.CommandSetEnv, Env: env}
		if err := c.invokeStep(ctx, nodes, cmd); err != nil {
			return err
		}
	}

	steps := []broadcast.Command{
		{Type: broadcast.CommandStartServices, Services: bootstrapServices},
		{Type: broadcast.CommandSetLogLevel, LogLevel: logger.Level()},
		{Type: broadcast.CommandSetMode, Mode: c.mode},
	}
	for _, cmd := range steps {
		if err := c.invokeStep(ctx, nodes, cmd); err != nil {
			return err
		}
	}

	if len(opts.Applications) > 0 {
		cmd := broadcast.Command{Type: broadcast.CommandStartServices, Services: opts.Applications}
		if err := c.invokeStep(ctx, nodes, cmd); err != nil {
			return err
		}
	}

	for _, path := range opts.Files {
		contents, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: load file %s: %v", ErrSyncFailed, path, err)
		}

		payload, err := broadcast.NewFilePayload(path, contents)
		if err != nil {
			return fmt.Errorf("%w: load file %s: %v", ErrSyncFailed, path, err)
		}

		cmd := broadcast.Command{Type: broadcast.CommandLoadFile, File: payload}
		if err := c.invokeStep(ctx, nodes, cmd); err != nil {
			return err
		}
	}

	return nil
}

// invokeStep broadcasts one command and folds any per-node failures into a
// single ErrSyncFailed.
func (c *Controller) invokeStep(ctx context.Context, nodes []string, cmd broadcast.Command) error {
	results, err := c.channel.Invoke(ctx, nodes, cmd)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSyncFailed, cmd.Type, err)
	}

	if failed := broadcast.Failures(results); len(failed) > 0 {
		return fmt.Errorf("%w: %s rejected by %v", ErrSyncFailed, cmd.Type, failureNodes(failed))
	}

	return nil
}

func failureNodes(failed []broadcast.Result) []string {
	nodes := make([]string, 0, len(failed))
	for _, r := range failed {
		nodes = append(nodes, fmt.Sprintf("%s: %s", r.Node, r.Err))
	}

	return nodes
}
