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

// Package cluster implements the harness's cluster controller: a single
// long-lived coordinating actor holding authoritative membership state. All
// operations are serialized through its mailbox, so no state mutation ever
// races: callers issuing concurrent Grow/StopMember/query calls are
// serialized by the controller, not by themselves.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/procwise/localcluster/pkg/bootstrap"
	"github.com/procwise/localcluster/pkg/broadcast"
	"github.com/procwise/localcluster/pkg/config"
	"github.com/procwise/localcluster/pkg/constants"
	"github.com/procwise/localcluster/pkg/launcher"
	"github.com/procwise/localcluster/pkg/logger"
	"github.com/procwise/localcluster/pkg/metrics"
	"github.com/procwise/localcluster/pkg/sentry"
)

// request is one unit of work for the controller actor. err is written by
// the actor before done is closed and must only be read afterwards.
type request struct {
	fn   func(ctx context.Context) error
	err  error
	done chan struct{}
}

// Controller coordinates the emulated cluster. Create it with New; all
// methods are safe for concurrent use.
type Controller struct {
	logger  *zap.SugaredLogger
	timeout time.Duration

	launcher launcher.Launcher
	channel  broadcast.Channel

	machine  *fsm.FSM
	requests chan *request

	// done is closed exactly once when the controller terminates, either via
	// Destroy or via death propagation. doneErr is written before the close
	// and must only be read after done is closed.
	done    chan struct{}
	doneErr error

	// Actor-owned state; only the run goroutine touches these.
	state      clusterState
	serviceEnv map[string]map[string]string

	host       string
	loaderAddr string
	cookie     string
	mode       string
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithLauncher replaces the default exec launcher, primarily for tests.
func WithLauncher(l launcher.Launcher) Option {
	return func(c *Controller) {
		c.launcher = l
	}
}

// WithChannel replaces the default HTTP broadcast channel, primarily for
// tests.
func WithChannel(ch broadcast.Channel) Option {
	return func(c *Controller) {
		c.channel = ch
	}
}

// WithServiceEnvironment overrides the controller's view of the environments
// of its already-loaded services, which seeds the env map distributed to new
// members.
func WithServiceEnvironment(env map[string]map[string]string) Option {
	return func(c *Controller) {
		c.serviceEnv = env
	}
}

// New creates a controller and provisions the initial member set. The whole
// creation fails if any member cannot be launched or synchronized; the
// partially created cluster is torn down before New returns.
func New(ctx context.Context, amount int, opts config.Options, options ...Option) (*Controller, error) {
	if amount < 0 {
		return nil, fmt.Errorf("member amount must not be negative, got %d", amount)
	}

	opts = opts.Clone()

	log := logger.For(logger.ComponentController)

	c := &Controller{
		logger:     log,
		timeout:    opts.Timeout(),
		machine:    newLifecycle(log),
		requests:   make(chan *request, constants.MailboxSize),
		done:       make(chan struct{}),
		serviceEnv: defaultServiceEnvironment(),
		host:       constants.LoopbackHost,
		mode:       gin.Mode(),
	}
	c.state = clusterState{prefix: derivePrefix(opts), options: opts}

	for _, option := range options {
		option(c)
	}

	// Without injected collaborators, enable the network and wire the real
	// launcher and broadcast channel.
	if c.launcher == nil {
		if err := bootstrap.EnsureNetworkEnabled(ctx); err != nil {
			return nil, err
		}

		execLauncher, err := launcher.NewExecLauncher()
		if err != nil {
			return nil, err
		}

		c.launcher = execLauncher
		c.loaderAddr = bootstrap.LoaderAddr()
		c.cookie = bootstrap.Cookie()
		if c.channel == nil {
			c.channel = broadcast.NewHTTPChannel(bootstrap.GetRegistry(), c.cookie)
		}
	}
	if c.channel == nil {
		return nil, errors.New("a broadcast channel is required when injecting a launcher")
	}

	metrics.InitErrorCounter(metrics.ComponentController, "main")

	go c.run()

	err := c.call("create", func(ctx context.Context) error {
		if _, err := c.addMembers(ctx, amount); err != nil {
			return err
		}

		return c.machine.Event(ctx, EventStarted)
	})
	if err != nil {
		_ = c.Destroy()

		return nil, fmt.Errorf("cluster creation failed: %w", err)
	}

	c.logger.Infof("Cluster %q created with %d members", c.state.prefix, amount)

	return c, nil
}

// Members returns the current live member list.
func (c *Controller) Members() ([]Member, error) {
	var members []Member

	err := c.call("members", func(ctx context.Context) error {
		members = append([]Member(nil), c.state.members...)

		return nil
	})

	return members, err
}

// Nodes returns the instance identifiers of the live members.
func (c *Controller) Nodes() ([]string, error) {
	var nodes []string

	err := c.call("nodes", func(ctx context.Context) error {
		for _, m := range c.state.members {
			nodes = append(nodes, m.Node)
		}

		return nil
	})

	return nodes, err
}

// PIDs returns the process handles of the live members.
func (c *Controller) PIDs() ([]*launcher.Process, error) {
	var procs []*launcher.Process

	err := c.call("pids", func(ctx context.Context) error {
		for _, m := range c.state.members {
			procs = append(procs, m.Proc)
		}

		return nil
	})

	return procs, err
}

// Grow adds amount members and returns exactly the newly created ones,
// computed as the difference between the post- and pre-call member lists.
func (c *Controller) Grow(amount int) ([]Member, error) {
	if amount < 0 {
		return nil, fmt.Errorf("member amount must not be negative, got %d", amount)
	}

	var grown []Member

	err := c.call("grow", func(ctx context.Context) error {
		if current := c.machine.Current(); current != StateRunning {
			return fmt.Errorf("%w (state %s)", ErrControllerTerminated, current)
		}

		pre := append([]Member(nil), c.state.members...)

		if _, err := c.addMembers(ctx, amount); err != nil {
			return err
		}

		grown = memberDiff(c.state.members, pre)

		return nil
	})

	return grown, err
}

// StopMember stops the first live member matching the selector. An unknown
// selector is a successful no-op so teardown stays idempotent.
func (c *Controller) StopMember(selector StopSelector) error {
	return c.call("stop_member", func(ctx context.Context) error {
		if current := c.machine.Current(); current != StateRunning {
			return fmt.Errorf("%w (state %s)", ErrControllerTerminated, current)
		}

		for _, m := range c.state.members {
			if !selector.matches(m) {
				continue
			}

			return c.stopMember(ctx, m)
		}

		return nil
	})
}

// Destroy terminates the controller, tearing down every still-linked member.
// Destroying an already-terminated controller is a no-op.
func (c *Controller) Destroy() error {
	err := c.call("destroy", func(ctx context.Context) error {
		c.teardownAll(ctx)
		c.terminate(nil)

		return nil
	})
	if errors.Is(err, ErrControllerTerminated) {
		return nil
	}

	return err
}

// Done is closed when the controller terminates, whether through Destroy or
// through unexpected member death.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Err reports why the controller terminated. It must only be called after
// Done is closed; nil means a clean Destroy.
func (c *Controller) Err() error {
	select {
	case <-c.done:
		return c.doneErr
	default:
		return nil
	}
}

// call runs fn on the actor goroutine and waits for completion, bounded by
// the operation timeout. A timed-out request may still execute later; the
// controller's state settles regardless of whether the caller is watching.
func (c *Controller) call(operation string, fn func(ctx context.Context) error) error {
	start := time.Now()
	defer func() {
		metrics.ObserveOperation(metrics.ComponentController, operation, time.Since(start))
	}()

	req := &request{fn: fn, done: make(chan struct{})}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case c.requests <- req:
	case <-c.done:
		return ErrControllerTerminated
	case <-timer.C:
		metrics.IncErrorCount(metrics.ComponentController, operation)

		return ErrOperationTimeout
	}

	select {
	case <-req.done:
		if req.err != nil {
			metrics.IncErrorCount(metrics.ComponentController, operation)
		}

		return req.err
	case <-timer.C:
		metrics.IncErrorCount(metrics.ComponentController, operation)

		return ErrOperationTimeout
	}
}

// run is the actor loop. All state mutation happens here, one request at a
// time, interleaved with death notifications from the supervision links. The
// loop outlives termination: a caller racing the close of done may still
// enqueue a request that needs an answer, and launcher watch goroutines keep
// publishing exits for members that die after the cluster does.
func (c *Controller) run() {
	for {
		select {
		case req := <-c.requests:
			c.serve(req)
		case ev := <-c.launcher.Deaths():
			c.handleDeath(ev)
		}
	}
}

// serve runs one request, answering immediately with the termination error
// once the controller is gone.
func (c *Controller) serve(req *request) {
	if c.terminated() {
		req.err = ErrControllerTerminated
		close(req.done)

		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	req.err = req.fn(ctx)
	cancel()
	close(req.done)
}

func (c *Controller) terminated() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// stopMember tears down one member: break the supervision link first so the
// exit is not misread as a failure, then stop the process, then drop it from
// state. An already-broken link means the membership bookkeeping is corrupt.
func (c *Controller) stopMember(ctx context.Context, m Member) error {
	if err := m.Proc.Unlink(); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, c.logger,
			"unlink of member %s failed, membership state is corrupt: %v", m.Node, err)

		return fmt.Errorf("%w: unlink %s: %v", ErrAssertionViolation, m.Node, err)
	}

	teardownErr := c.launcher.Teardown(ctx, m.Proc)

	c.state.remove(m)
	metrics.SetLiveMembers(len(c.state.members))
	c.logger.Infof("Stopped member %s (pid %d)", m.Node, m.Proc.PID)

	if teardownErr != nil {
		return fmt.Errorf("teardown of member %s: %w", m.Node, teardownErr)
	}

	return nil
}

// teardownAll unlinks and stops every live member, best effort.
func (c *Controller) teardownAll(ctx context.Context) {
	for _, m := range c.state.members {
		if m.Proc.Linked() {
			_ = m.Proc.Unlink()
		}
		if err := c.launcher.Teardown(ctx, m.Proc); err != nil {
			c.logger.Warnf("Teardown of member %s failed: %v", m.Node, err)
		}
	}

	c.state.members = nil
	metrics.SetLiveMembers(0)
}

// terminate moves the lifecycle to terminated and closes done.
func (c *Controller) terminate(reason error) {
	if c.machine.Current() == StateTerminated {
		return
	}

	_ = c.machine.Event(context.Background(), EventTerminate)
	_ = c.machine.Event(context.Background(), EventTerminateDone)

	c.doneErr = reason
	close(c.done)

	if reason != nil {
		c.logger.Errorf("Cluster %q terminated: %v", c.state.prefix, reason)
	} else {
		c.logger.Infof("Cluster %q destroyed", c.state.prefix)
	}
}

// handleDeath reacts to a member process exiting. An unlinked exit is an
// intentional stop. A linked exit of a tracked member is fatal to the whole
// cluster: every remaining member is torn down and the controller reports
// itself terminated.
func (c *Controller) handleDeath(ev launcher.ExitEvent) {
	if ev.Unlinked {
		c.logger.Debugf("Member %s (pid %d) exited after unlink", ev.Name, ev.PID)

		return
	}

	var dead *Member
	for i := range c.state.members {
		if c.state.members[i].Proc.PID == ev.PID {
			dead = &c.state.members[i]

			break
		}
	}
	if dead == nil {
		c.logger.Debugf("Exit event for untracked pid %d ignored", ev.PID)

		return
	}

	sentry.ReportIssuef(sentry.IssueTypeError, c.logger,
		"member %s died unexpectedly (exit code %d), tearing down cluster %q", ev.Name, ev.ExitCode, c.state.prefix)
	metrics.IncErrorCount(metrics.ComponentController, ev.Name)

	reason := fmt.Errorf("member %s terminated unexpectedly with exit code %d", dead.Node, ev.ExitCode)

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	c.state.remove(*dead)
	c.teardownAll(ctx)
	c.terminate(reason)
}
