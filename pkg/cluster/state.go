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
	"github.com/google/uuid"

	"github.com/procwise/localcluster/pkg/config"
	"github.com/procwise/localcluster/pkg/constants"
)

// clusterState is the controller's authoritative membership state. It is
// only ever touched from the controller's actor goroutine.
type clusterState struct {
	// index counts members ever allocated. Ordinals are never reused, even
	// after removals, so index and len(members) diverge once any member is
	// stopped.
	index int

	// prefix is fixed at creation and derives every member name.
	prefix string

	// members is the insertion-ordered live member list.
	members []Member

	// options is the immutable configuration captured at creation.
	options config.Options
}

// derivePrefix resolves the naming prefix: explicit prefix, else the cluster
// name, else a fresh random lowercase token.
func derivePrefix(opts config.Options) string {
	if opts.Prefix != "" {
		return opts.Prefix
	}
	if opts.Name != "" {
		return opts.Name
	}

	return randomPrefix()
}

// randomPrefix generates an 8-character lowercase token from fresh UUID
// entropy.
func randomPrefix() string {
	id := uuid.New()

	token := make([]byte, constants.PrefixLength)
	for i := range token {
		token[i] = 'a' + id[i]%26
	}

	return string(token)
}

// remove deletes the first member equal to m, by value.
func (s *clusterState) remove(m Member) {
	for i, existing := range s.members {
		if existing.Proc == m.Proc && existing.Node == m.Node {
			s.members = append(s.members[:i], s.members[i+1:]...)

			return
		}
	}
}

// memberDiff returns the members of post that are not in pre, preserving
// multiplicity: each pre entry cancels at most one post entry.
func memberDiff(post, pre []Member) []Member {
	remaining := append([]Member(nil), post...)

	for _, old := range pre {
		for i, m := range remaining {
			if m.Proc == old.Proc && m.Node == old.Node {
				remaining = append(remaining[:i], remaining[i+1:]...)

				break
			}
		}
	}

	return remaining
}
