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

package config

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/procwise/localcluster/pkg/constants"
)

var _ = Describe("Options", func() {
	Describe("Clone", func() {
		It("should produce an independent copy", func() {
			original := Options{
				Applications: []string{"db"},
				Environment:  map[string]map[string]string{"db": {"dir": "/tmp"}},
			}

			clone := original.Clone()
			clone.Applications[0] = "changed"
			clone.Environment["db"]["dir"] = "/changed"

			Expect(original.Applications[0]).To(Equal("db"))
			Expect(original.Environment["db"]["dir"]).To(Equal("/tmp"))
		})
	})

	Describe("Timeout", func() {
		It("should default when unset", func() {
			Expect(Options{}.Timeout()).To(Equal(constants.DefaultOperationTimeout))
		})

		It("should honor an explicit value", func() {
			opts := Options{OperationTimeout: 5 * time.Second}
			Expect(opts.Timeout()).To(Equal(5 * time.Second))
		})
	})
})

var _ = Describe("LoadFromFile", func() {
	writeConfig := func(contents string) string {
		path := filepath.Join(GinkgoT().TempDir(), "cluster.yaml")
		Expect(os.WriteFile(path, []byte(contents), 0o600)).To(Succeed())

		return path
	}

	It("should parse a full configuration", func() {
		path := writeConfig(`
initialMembers: 3
metricsPort: 9090
options:
  name: alpha
  applications:
    - db
    - api
  environment:
    logging:
      level: debug
  codePaths:
    - /src/lib
  operationTimeout: 10s
`)

		cfg, err := LoadFromFile(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.InitialMembers).To(Equal(3))
		Expect(cfg.MetricsPort).To(Equal(9090))
		Expect(cfg.Options.Name).To(Equal("alpha"))
		Expect(cfg.Options.Applications).To(Equal([]string{"db", "api"}))
		Expect(cfg.Options.Environment["logging"]).To(HaveKeyWithValue("level", "debug"))
		Expect(cfg.Options.OperationTimeout).To(Equal(10 * time.Second))
	})

	It("should reject unknown fields", func() {
		path := writeConfig("initialMembers: 1\nmispelledField: true\n")

		_, err := LoadFromFile(path)
		Expect(err).To(HaveOccurred())
	})

	It("should reject an unparsable operation timeout", func() {
		path := writeConfig("initialMembers: 1\noptions:\n  operationTimeout: soon\n")

		_, err := LoadFromFile(path)
		Expect(err).To(HaveOccurred())
	})

	It("should reject a negative member count", func() {
		path := writeConfig("initialMembers: -2\n")

		_, err := LoadFromFile(path)
		Expect(err).To(HaveOccurred())
	})

	It("should fail for a missing file", func() {
		_, err := LoadFromFile("/does/not/exist.yaml")
		Expect(err).To(HaveOccurred())
	})
})
