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
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/procwise/localcluster/pkg/broadcast"
	"github.com/procwise/localcluster/pkg/logger"
)

var _ = Describe("Executor", func() {
	var executor *Executor

	BeforeEach(func() {
		executor = NewExecutor(logger.For(logger.ComponentAgent))
	})

	It("should record code paths", func() {
		cmd := broadcast.Command{
			Type:      broadcast.CommandSetCodePaths,
			CodePaths: []string{"/src/a", "/src/b"},
		}
		Expect(executor.Apply(cmd)).To(Succeed())
		Expect(executor.CodePaths()).To(Equal([]string{"/src/a", "/src/b"}))
	})

	It("should hand environments to the service set", func() {
		cmd := broadcast.Command{
			Type: broadcast.CommandSetEnv,
			Env:  map[string]map[string]string{"db": {"dir": "/tmp/db"}},
		}
		Expect(executor.Apply(cmd)).To(Succeed())
		Expect(executor.Services().Env("db")).To(HaveKeyWithValue("dir", "/tmp/db"))
	})

	It("should start services in order", func() {
		var order []string
		executor.Services().Register("first", func(env map[string]string) error {
			order = append(order, "first")

			return nil
		})
		executor.Services().Register("second", func(env map[string]string) error {
			order = append(order, "second")

			return nil
		})

		cmd := broadcast.Command{
			Type:     broadcast.CommandStartServices,
			Services: []string{"first", "second"},
		}
		Expect(executor.Apply(cmd)).To(Succeed())
		Expect(order).To(Equal([]string{"first", "second"}))
		Expect(executor.Services().Started("first")).To(BeTrue())
	})

	It("should surface a service start failure", func() {
		executor.Services().Register("broken", func(env map[string]string) error {
			return errors.New("no database directory")
		})

		cmd := broadcast.Command{
			Type:     broadcast.CommandStartServices,
			Services: []string{"broken"},
		}
		Expect(executor.Apply(cmd)).To(MatchError(ContainSubstring("no database directory")))
	})

	It("should evaluate a loaded source file", func() {
		payload, err := broadcast.NewFilePayload("snippet.go", []byte(`1 + 2`))
		Expect(err).ToNot(HaveOccurred())

		cmd := broadcast.Command{Type: broadcast.CommandLoadFile, File: payload}
		Expect(executor.Apply(cmd)).To(Succeed())
	})

	It("should reject a load-file command whose payload fails verification", func() {
		payload, err := broadcast.NewFilePayload("snippet.go", []byte(`1 + 2`))
		Expect(err).ToNot(HaveOccurred())
		payload.Checksum++

		cmd := broadcast.Command{Type: broadcast.CommandLoadFile, File: payload}
		Expect(executor.Apply(cmd)).ToNot(Succeed())
	})

	It("should reject a load-file command without a payload", func() {
		cmd := broadcast.Command{Type: broadcast.CommandLoadFile}
		Expect(executor.Apply(cmd)).ToNot(Succeed())
	})

	It("should reject a syntactically invalid source file", func() {
		payload, err := broadcast.NewFilePayload("snippet.go", []byte(`func {{{`))
		Expect(err).ToNot(HaveOccurred())

		cmd := broadcast.Command{Type: broadcast.CommandLoadFile, File: payload}
		Expect(executor.Apply(cmd)).ToNot(Succeed())
	})
})

var _ = Describe("ServiceSet", func() {
	It("should skip already started services", func() {
		starts := 0
		set := NewServiceSet(logger.For(logger.ComponentAgent))
		set.Register("db", func(env map[string]string) error {
			starts++

			return nil
		})

		Expect(set.Start([]string{"db"})).To(Succeed())
		Expect(set.Start([]string{"db"})).To(Succeed())
		Expect(starts).To(Equal(1))
	})

	It("should pass the configured environment to the starter", func() {
		var seen map[string]string
		set := NewServiceSet(logger.For(logger.ComponentAgent))
		set.Register("db", func(env map[string]string) error {
			seen = env

			return nil
		})

		set.SetEnv(map[string]map[string]string{"db": {"dir": "/tmp/db"}})
		Expect(set.Start([]string{"db"})).To(Succeed())
		Expect(seen).To(HaveKeyWithValue("dir", "/tmp/db"))
	})

	It("should record the start of services without a registered starter", func() {
		set := NewServiceSet(logger.For(logger.ComponentAgent))

		Expect(set.Start([]string{"custom-app"})).To(Succeed())
		Expect(set.Started("custom-app")).To(BeTrue())
	})
})

var _ = Describe("Config", func() {
	It("should build the instance identifier from name and host", func() {
		cfg := Config{Name: "alpha0", Host: "127.0.0.1"}
		Expect(cfg.Node()).To(Equal("alpha0@127.0.0.1"))
	})

	It("should reject a host outside the allowed list", func() {
		_, err := NewAgent(Config{
			Name:         "alpha0",
			Host:         "10.0.0.5",
			LoaderAddr:   "127.0.0.1:9000",
			AllowedHosts: []string{"127.0.0.1"},
			Cookie:       "secret",
		})
		Expect(err).To(HaveOccurred())
	})

	It("should default the host to loopback", func() {
		agent, err := NewAgent(Config{
			Name:       "alpha0",
			LoaderAddr: "127.0.0.1:9000",
			Cookie:     "secret",
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(agent.cfg.Host).To(Equal("127.0.0.1"))
	})

	It("should require a member name", func() {
		_, err := NewAgent(Config{LoaderAddr: "127.0.0.1:9000"})
		Expect(err).To(HaveOccurred())
	})
})
