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
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/procwise/localcluster/pkg/broadcast"
	"github.com/procwise/localcluster/pkg/config"
	"github.com/procwise/localcluster/pkg/launcher"
)

var _ = Describe("Controller", func() {
	var (
		ml *launcher.MockLauncher
		mc *broadcast.MockChannel
	)

	BeforeEach(func() {
		ml = launcher.NewMockLauncher()
		mc = broadcast.NewMockChannel()
	})

	newController := func(amount int, opts config.Options) *Controller {
		c, err := New(context.Background(), amount, opts, WithLauncher(ml), WithChannel(mc))
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() {
			Expect(c.Destroy()).To(Succeed())
		})

		return c
	}

	Describe("creation", func() {
		It("should launch the requested number of members with sequential names", func() {
			c := newController(3, config.Options{Name: "alpha"})

			members, err := c.Members()
			Expect(err).ToNot(HaveOccurred())
			Expect(members).To(HaveLen(3))

			for i, m := range members {
				Expect(m.Node).To(Equal(fmt.Sprintf("alpha%d@127.0.0.1", i+1)))
				Expect(m.Proc.Linked()).To(BeTrue())
			}

			launched := ml.Launched()
			Expect(launched).To(HaveLen(3))
			Expect(launched[0].Host).To(Equal("127.0.0.1"))
			Expect(launched[0].Name).To(Equal("alpha1"))
		})

		It("should create an empty cluster when amount is zero", func() {
			c := newController(0, config.Options{Name: "empty"})

			members, err := c.Members()
			Expect(err).ToNot(HaveOccurred())
			Expect(members).To(BeEmpty())
			Expect(ml.Launched()).To(BeEmpty())
			Expect(mc.Invocations()).To(BeEmpty())
		})

		It("should prefer the explicit prefix over the cluster name", func() {
			c := newController(1, config.Options{Name: "alpha", Prefix: "node-"})

			nodes, err := c.Nodes()
			Expect(err).ToNot(HaveOccurred())
			Expect(nodes).To(ConsistOf("node-1@127.0.0.1"))
		})

		It("should generate a random prefix when none is configured", func() {
			c := newController(1, config.Options{})

			nodes, err := c.Nodes()
			Expect(err).ToNot(HaveOccurred())
			Expect(nodes).To(HaveLen(1))
			Expect(nodes[0]).To(MatchRegexp(`^[a-z]{8}1@127\.0\.0\.1$`))
		})

		It("should reject a negative member amount", func() {
			_, err := New(context.Background(), -1, config.Options{}, WithLauncher(ml), WithChannel(mc))
			Expect(err).To(HaveOccurred())
		})

		It("should tear the batch down when creation fails to launch", func() {
			calls := 0
			ml.WithLaunchFunc(func(ctx context.Context, host, name string, args []string) (*launcher.Process, error) {
				calls++
				if calls == 3 {
					return nil, errors.New("spawn failed")
				}

				return &launcher.Process{PID: 5000 + calls, Name: name}, nil
			})

			_, err := New(context.Background(), 3, config.Options{Name: "beta"}, WithLauncher(ml), WithChannel(mc))
			Expect(err).To(MatchError(ErrLaunchFailed))
			Expect(ml.TornDown()).To(HaveLen(2))
		})
	})

	Describe("synchronization", func() {
		It("should run the command sequence against every new member", func() {
			opts := config.Options{
				Name:         "gamma",
				CodePaths:    []string{"/tmp/code"},
				Applications: []string{"db", "api"},
			}
			newController(2, opts)

			invocations := mc.Invocations()
			Expect(invocations).To(HaveLen(6))

			types := make([]broadcast.CommandType, 0, len(invocations))
			for _, inv := range invocations {
				Expect(inv.Nodes).To(ConsistOf("gamma1@127.0.0.1", "gamma2@127.0.0.1"))
				types = append(types, inv.Command.Type)
			}

			Expect(types).To(Equal([]broadcast.CommandType{
				broadcast.CommandSetCodePaths,
				broadcast.CommandSetEnv,
				broadcast.CommandStartServices,
				broadcast.CommandSetLogLevel,
				broadcast.CommandSetMode,
				broadcast.CommandStartServices,
			}))

			Expect(invocations[0].Command.CodePaths).To(Equal([]string{"/tmp/code"}))
			Expect(invocations[2].Command.Services).To(Equal([]string{"logging", "metrics"}))
			Expect(invocations[5].Command.Services).To(Equal([]string{"db", "api"}))
		})

		It("should merge configured environments over the defaults", func() {
			opts := config.Options{
				Name: "delta",
				Environment: map[string]map[string]string{
					"logging": {"level": "debug"},
					"db":      {"dir": "/tmp/db"},
				},
			}
			newController(1, opts)

			var envCmd *broadcast.Command
			for _, inv := range mc.Invocations() {
				if inv.Command.Type == broadcast.CommandSetEnv {
					envCmd = &inv.Command

					break
				}
			}

			Expect(envCmd).ToNot(BeNil())
			Expect(envCmd.Env["logging"]).To(HaveKeyWithValue("level", "debug"))
			Expect(envCmd.Env["db"]).To(HaveKeyWithValue("dir", "/tmp/db"))
		})

		It("should keep rejected members alive and stoppable", func() {
			mc.WithInvokeFunc(func(ctx context.Context, nodes []string, cmd broadcast.Command) ([]broadcast.Result, error) {
				results := make([]broadcast.Result, len(nodes))
				for i, node := range nodes {
					results[i] = broadcast.Result{Node: node, Err: "service refused to start"}
				}

				return results, nil
			})

			c, err := New(context.Background(), 0, config.Options{Name: "eps"}, WithLauncher(ml), WithChannel(mc))
			Expect(err).ToNot(HaveOccurred())
			defer func() { _ = c.Destroy() }()

			_, err = c.Grow(2)
			Expect(err).To(MatchError(ErrSyncFailed))

			members, err := c.Members()
			Expect(err).ToNot(HaveOccurred())
			Expect(members).To(HaveLen(2))

			Expect(c.StopMember(SelectNode(members[0].Node))).To(Succeed())
			Expect(c.Destroy()).To(Succeed())
		})
	})

	Describe("Grow", func() {
		It("should return exactly the members added by this call", func() {
			c := newController(2, config.Options{Name: "zeta"})

			grown, err := c.Grow(3)
			Expect(err).ToNot(HaveOccurred())
			Expect(grown).To(HaveLen(3))
			Expect(grown[0].Node).To(Equal("zeta3@127.0.0.1"))
			Expect(grown[2].Node).To(Equal("zeta5@127.0.0.1"))

			members, err := c.Members()
			Expect(err).ToNot(HaveOccurred())
			Expect(members).To(HaveLen(5))
		})

		It("should be a no-op for amount zero", func() {
			c := newController(1, config.Options{Name: "eta"})

			grown, err := c.Grow(0)
			Expect(err).ToNot(HaveOccurred())
			Expect(grown).To(BeEmpty())
		})

		It("should never reuse the ordinal of a stopped member", func() {
			c := newController(2, config.Options{Name: "theta"})

			members, err := c.Members()
			Expect(err).ToNot(HaveOccurred())
			Expect(c.StopMember(SelectMember(members[1]))).To(Succeed())

			grown, err := c.Grow(1)
			Expect(err).ToNot(HaveOccurred())
			Expect(grown[0].Node).To(Equal("theta3@127.0.0.1"))
		})

		It("should leave membership unchanged when a launch fails", func() {
			c := newController(1, config.Options{Name: "iota"})

			ml.WithLaunchFunc(func(ctx context.Context, host, name string, args []string) (*launcher.Process, error) {
				return nil, errors.New("out of file descriptors")
			})

			_, err := c.Grow(2)
			Expect(err).To(MatchError(ErrLaunchFailed))

			members, err := c.Members()
			Expect(err).ToNot(HaveOccurred())
			Expect(members).To(HaveLen(1))
			Expect(members[0].Node).To(Equal("iota1@127.0.0.1"))
		})
	})

	Describe("StopMember", func() {
		It("should stop a member selected by node identifier", func() {
			c := newController(2, config.Options{Name: "kappa"})

			Expect(c.StopMember(SelectNode("kappa1@127.0.0.1"))).To(Succeed())

			nodes, err := c.Nodes()
			Expect(err).ToNot(HaveOccurred())
			Expect(nodes).To(ConsistOf("kappa2@127.0.0.1"))
			Expect(ml.TornDown()).To(HaveLen(1))
			Expect(ml.TornDown()[0].Name).To(Equal("kappa1"))
		})

		It("should stop a member selected by process handle", func() {
			c := newController(2, config.Options{Name: "lambda"})

			procs, err := c.PIDs()
			Expect(err).ToNot(HaveOccurred())
			Expect(c.StopMember(SelectProcess(procs[1]))).To(Succeed())

			nodes, err := c.Nodes()
			Expect(err).ToNot(HaveOccurred())
			Expect(nodes).To(ConsistOf("lambda1@127.0.0.1"))
		})

		It("should treat an unknown selector as a successful no-op", func() {
			c := newController(2, config.Options{Name: "mu"})

			Expect(c.StopMember(SelectNode("ghost9@127.0.0.1"))).To(Succeed())

			members, err := c.Members()
			Expect(err).ToNot(HaveOccurred())
			Expect(members).To(HaveLen(2))
			Expect(ml.TornDown()).To(BeEmpty())
		})

		It("should remove the member even when teardown fails", func() {
			c := newController(1, config.Options{Name: "nu"})

			ml.WithTeardownFunc(func(ctx context.Context, p *launcher.Process) error {
				return errors.New("kill refused")
			})

			members, err := c.Members()
			Expect(err).ToNot(HaveOccurred())
			Expect(c.StopMember(SelectMember(members[0]))).ToNot(Succeed())

			remaining, err := c.Members()
			Expect(err).ToNot(HaveOccurred())
			Expect(remaining).To(BeEmpty())
		})
	})

	Describe("Destroy", func() {
		It("should tear down all members and report a clean termination", func() {
			c, err := New(context.Background(), 3, config.Options{Name: "xi"}, WithLauncher(ml), WithChannel(mc))
			Expect(err).ToNot(HaveOccurred())

			Expect(c.Destroy()).To(Succeed())
			Expect(ml.TornDown()).To(HaveLen(3))
			Expect(c.Done()).To(BeClosed())
			Expect(c.Err()).ToNot(HaveOccurred())
		})

		It("should be idempotent", func() {
			c, err := New(context.Background(), 1, config.Options{Name: "omicron"}, WithLauncher(ml), WithChannel(mc))
			Expect(err).ToNot(HaveOccurred())

			Expect(c.Destroy()).To(Succeed())
			Expect(c.Destroy()).To(Succeed())
		})

		It("should answer every post-destroy operation promptly with the termination error", func() {
			opts := config.Options{Name: "tau", OperationTimeout: 300 * time.Millisecond}
			c, err := New(context.Background(), 1, opts, WithLauncher(ml), WithChannel(mc))
			Expect(err).ToNot(HaveOccurred())
			Expect(c.Destroy()).To(Succeed())

			// A stranded request would surface as ErrOperationTimeout here.
			for i := 0; i < 40; i++ {
				_, err := c.Members()
				Expect(err).To(MatchError(ErrControllerTerminated))
			}

			_, err = c.Grow(1)
			Expect(err).To(MatchError(ErrControllerTerminated))
			Expect(c.Destroy()).To(Succeed())
		})

		It("should fail subsequent operations with the termination error", func() {
			c, err := New(context.Background(), 1, config.Options{Name: "pi"}, WithLauncher(ml), WithChannel(mc))
			Expect(err).ToNot(HaveOccurred())
			Expect(c.Destroy()).To(Succeed())

			_, err = c.Grow(1)
			Expect(err).To(MatchError(ErrControllerTerminated))

			_, err = c.Members()
			Expect(err).To(MatchError(ErrControllerTerminated))
		})
	})

	Describe("supervision", func() {
		It("should tear down the whole cluster when a linked member dies", func() {
			c, err := New(context.Background(), 3, config.Options{Name: "rho"}, WithLauncher(ml), WithChannel(mc))
			Expect(err).ToNot(HaveOccurred())

			procs, err := c.PIDs()
			Expect(err).ToNot(HaveOccurred())

			ml.Kill(procs[1], 137)

			Eventually(c.Done()).Should(BeClosed())
			Expect(c.Err()).To(HaveOccurred())
			Expect(c.Err().Error()).To(ContainSubstring("rho2@127.0.0.1"))
			Eventually(func() int { return len(ml.TornDown()) }).Should(Equal(2))
		})

		It("should ignore the death of an unlinked member", func() {
			c := newController(2, config.Options{Name: "sigma"})

			procs, err := c.PIDs()
			Expect(err).ToNot(HaveOccurred())

			Expect(procs[0].Unlink()).To(Succeed())
			ml.Kill(procs[0], 0)

			Consistently(c.Done()).ShouldNot(BeClosed())

			members, err := c.Members()
			Expect(err).ToNot(HaveOccurred())
			Expect(members).To(HaveLen(2))
		})
	})
})
