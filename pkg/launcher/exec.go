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

package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/procwise/localcluster/pkg/constants"
	"github.com/procwise/localcluster/pkg/logger"
)

// ExecLauncher spawns members as child OS processes running this binary in
// member-agent mode.
type ExecLauncher struct {
	logger *zap.SugaredLogger

	// binary is the executable to spawn; defaults to the running binary so
	// members are byte-identical to the controller.
	binary string

	grace  time.Duration
	deaths chan ExitEvent

	mu   sync.Mutex
	cmds map[int]*exec.Cmd
}

// ExecLauncherOption is a functional option for configuring ExecLauncher.
type ExecLauncherOption func(*ExecLauncher)

// WithBinary overrides the executable used for member processes.
func WithBinary(path string) ExecLauncherOption {
	return func(l *ExecLauncher) {
		l.binary = path
	}
}

// WithGracePeriod overrides the SIGTERM-to-SIGKILL grace period.
func WithGracePeriod(grace time.Duration) ExecLauncherOption {
	return func(l *ExecLauncher) {
		l.grace = grace
	}
}

// NewExecLauncher creates a launcher for member processes.
func NewExecLauncher(options ...ExecLauncherOption) (*ExecLauncher, error) {
	binary, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve own executable: %w", err)
	}

	l := &ExecLauncher{
		logger: logger.For(logger.ComponentLauncher),
		binary: binary,
		grace:  constants.DefaultTeardownGracePeriod,
		deaths: make(chan ExitEvent, 64),
		cmds:   make(map[int]*exec.Cmd),
	}

	for _, option := range options {
		option(l)
	}

	return l, nil
}

// Launch starts one member process. The member-agent subcommand and its
// identity flags are prepended; args carries the low-level startup arguments
// (loader address, allowed hosts, cookie) supplied by the controller.
func (l *ExecLauncher) Launch(ctx context.Context, host, name string, args []string) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	argv := append([]string{"member", "--name", name, "--host", host}, args...)

	cmd := exec.Command(l.binary, argv...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// Members get their own process group so signals aimed at one member
	// never leak to the controller or its siblings.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to launch member %s: %w", name, err)
	}

	p := &Process{PID: cmd.Process.Pid, Name: name}

	l.mu.Lock()
	l.cmds[p.PID] = cmd
	l.mu.Unlock()

	l.logger.Infof("Launched member %s with pid %d", name, p.PID)

	go l.watch(p, cmd)

	return p, nil
}

// watch is the supervision link: it blocks until the process exits and
// publishes the exit, tagged with the link state at exit time.
func (l *ExecLauncher) watch(p *Process, cmd *exec.Cmd) {
	err := cmd.Wait()

	exitCode := 0
	if err != nil {
		exitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
	}

	l.mu.Lock()
	delete(l.cmds, p.PID)
	l.mu.Unlock()

	l.deaths <- ExitEvent{
		Name:     p.Name,
		PID:      p.PID,
		ExitCode: exitCode,
		Unlinked: !p.Linked(),
	}
}

// Teardown stops a member process, escalating from SIGTERM to SIGKILL after
// the grace period. A process that is already gone is a successful no-op.
func (l *ExecLauncher) Teardown(ctx context.Context, p *Process) error {
	alive, err := process.PidExists(int32(p.PID))
	if err != nil {
		return fmt.Errorf("failed to probe member %s (pid %d): %w", p.Name, p.PID, err)
	}
	if !alive {
		return nil
	}

	if err := syscall.Kill(p.PID, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("failed to signal member %s (pid %d): %w", p.Name, p.PID, err)
	}

	deadline := time.Now().Add(l.grace)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			alive, err := process.PidExists(int32(p.PID))
			if err == nil && !alive {
				return nil
			}
			if time.Now().After(deadline) {
				l.logger.Warnf("Member %s (pid %d) did not exit within %s, killing", p.Name, p.PID, l.grace)
				if err := syscall.Kill(p.PID, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
					return fmt.Errorf("failed to kill member %s (pid %d): %w", p.Name, p.PID, err)
				}

				return nil
			}
		}
	}
}

// Deaths delivers exit events for all launched processes.
func (l *ExecLauncher) Deaths() <-chan ExitEvent {
	return l.deaths
}
