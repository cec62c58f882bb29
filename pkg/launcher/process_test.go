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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Process", func() {
	It("should start linked", func() {
		p := &Process{PID: 42, Name: "alpha0"}
		Expect(p.Linked()).To(BeTrue())
	})

	It("should unlink exactly once", func() {
		p := &Process{PID: 42, Name: "alpha0"}

		Expect(p.Unlink()).To(Succeed())
		Expect(p.Linked()).To(BeFalse())
		Expect(p.Unlink()).To(MatchError(ErrAlreadyUnlinked))
	})
})

var _ = Describe("MockLauncher", func() {
	It("should fabricate distinct pids per launch", func() {
		ml := NewMockLauncher()

		a, err := ml.Launch(context.Background(), "127.0.0.1", "alpha0", nil)
		Expect(err).ToNot(HaveOccurred())
		b, err := ml.Launch(context.Background(), "127.0.0.1", "alpha1", nil)
		Expect(err).ToNot(HaveOccurred())

		Expect(a.PID).ToNot(Equal(b.PID))
		Expect(ml.Launched()).To(HaveLen(2))
	})

	It("should mark the exit of a linked process as linked", func() {
		ml := NewMockLauncher()

		p, err := ml.Launch(context.Background(), "127.0.0.1", "alpha0", nil)
		Expect(err).ToNot(HaveOccurred())

		ml.Kill(p, 1)

		var ev ExitEvent
		Eventually(ml.Deaths()).Should(Receive(&ev))
		Expect(ev.Unlinked).To(BeFalse())
		Expect(ev.ExitCode).To(Equal(1))
		Expect(ev.PID).To(Equal(p.PID))
	})

	It("should mark the exit of an unlinked process as unlinked", func() {
		ml := NewMockLauncher()

		p, err := ml.Launch(context.Background(), "127.0.0.1", "alpha0", nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(p.Unlink()).To(Succeed())

		Expect(ml.Teardown(context.Background(), p)).To(Succeed())

		var ev ExitEvent
		Eventually(ml.Deaths()).Should(Receive(&ev))
		Expect(ev.Unlinked).To(BeTrue())
	})
})
