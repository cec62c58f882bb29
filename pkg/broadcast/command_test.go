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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("FilePayload", func() {
	It("should compress and restore file contents", func() {
		contents := []byte("package main\n\nfunc main() {}\n")

		payload, err := NewFilePayload("/src/main.go", contents)
		Expect(err).ToNot(HaveOccurred())
		Expect(payload.Path).To(Equal("/src/main.go"))

		restored, err := payload.Contents()
		Expect(err).ToNot(HaveOccurred())
		Expect(restored).To(Equal(contents))
	})

	It("should reject a payload whose checksum does not match", func() {
		payload, err := NewFilePayload("/src/main.go", []byte("original"))
		Expect(err).ToNot(HaveOccurred())

		payload.Checksum++

		_, err = payload.Contents()
		Expect(err).To(MatchError(ContainSubstring("checksum mismatch")))
	})

	It("should reject corrupted compressed data", func() {
		payload, err := NewFilePayload("/src/main.go", []byte("original"))
		Expect(err).ToNot(HaveOccurred())

		payload.Data = []byte("not gzip")

		_, err = payload.Contents()
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Failures", func() {
	It("should return only results carrying an error", func() {
		results := []Result{
			{Node: "a@h"},
			{Node: "b@h", Err: "refused"},
			{Node: "c@h"},
		}

		failed := Failures(results)
		Expect(failed).To(HaveLen(1))
		Expect(failed[0].Node).To(Equal("b@h"))
	})

	It("should return nothing for an all-success collection", func() {
		Expect(Failures([]Result{{Node: "a@h"}})).To(BeEmpty())
	})
})

var _ = Describe("CommandType", func() {
	It("should render stable wire names", func() {
		Expect(CommandSetCodePaths.String()).To(Equal("set-code-paths"))
		Expect(CommandSetEnv.String()).To(Equal("set-env"))
		Expect(CommandStartServices.String()).To(Equal("start-services"))
		Expect(CommandSetLogLevel.String()).To(Equal("set-log-level"))
		Expect(CommandSetMode.String()).To(Equal("set-mode"))
		Expect(CommandLoadFile.String()).To(Equal("load-file"))
	})
})
