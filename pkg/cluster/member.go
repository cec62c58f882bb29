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

import "github.com/procwise/localcluster/pkg/launcher"

// Member is one live cluster instance: the local supervision handle used to
// link/unlink and route stop requests, and the network-level identity used
// for broadcast routing. Immutable once created; the controller's member
// list is the only long-lived owner.
type Member struct {
	Proc *launcher.Process
	Node string
}

type selectorKind int

const (
	selectByMember selectorKind = iota
	selectByNode
	selectByPID
)

// StopSelector identifies the member a StopMember call should affect. It is
// a tagged union over the three ways callers hold a reference: the full
// member value, the bare instance identifier, or the bare process handle.
type StopSelector struct {
	kind   selectorKind
	member Member
	node   string
	proc   *launcher.Process
}

// SelectMember selects by full member value.
func SelectMember(m Member) StopSelector {
	return StopSelector{kind: selectByMember, member: m}
}

// SelectNode selects by instance identifier.
func SelectNode(node string) StopSelector {
	return StopSelector{kind: selectByNode, node: node}
}

// SelectProcess selects by process handle.
func SelectProcess(p *launcher.Process) StopSelector {
	return StopSelector{kind: selectByPID, proc: p}
}

// matches reports whether the selector identifies m.
func (s StopSelector) matches(m Member) bool {
	switch s.kind {
	case selectByMember:
		return s.member.Proc == m.Proc && s.member.Node == m.Node
	case selectByNode:
		return s.node == m.Node
	case selectByPID:
		return s.proc == m.Proc
	default:
		return false
	}
}
