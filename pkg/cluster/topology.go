//
//  Copyright 2023 PayPal Inc.
//
//  Licensed to the Apache Software Foundation (ASF) under one or more
//  contributor license agreements.  See the NOTICE file distributed with
//  this work for additional information regarding copyright ownership.
//  The ASF licenses this file to You under the Apache License, Version 2.0
//  (the "License"); you may not use this file except in compliance with
//  the License.  You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.
//

package cluster

import (
	"fmt"

	"hotrod/pkg/proto"
)

// Topology is an immutable snapshot of cluster membership and segment
// ownership. It is replaced as a whole, never changed in place.
type Topology struct {
	ID           uint32
	Members      []proto.ServerAddress
	HashFunction byte
	// Segments[i] lists indices into Members, primary owner first
	Segments [][]int
	// false for the seed list configured locally
	fromServer bool
}

func seedTopology(seeds []proto.ServerAddress) *Topology {
	members := make([]proto.ServerAddress, len(seeds))
	copy(members, seeds)
	return &Topology{Members: members}
}

// NewTopology copies a decoded topology update.
func NewTopology(u *proto.TopologyUpdate) *Topology {
	t := &Topology{
		ID:           u.ID,
		Members:      make([]proto.ServerAddress, len(u.Servers)),
		HashFunction: u.HashFunction,
		fromServer:   true,
	}
	copy(t.Members, u.Servers)
	if len(u.Segments) != 0 {
		t.Segments = make([][]int, len(u.Segments))
		for i, owners := range u.Segments {
			t.Segments[i] = append([]int(nil), owners...)
		}
	}
	return t
}

func (t *Topology) HasMember(addr proto.ServerAddress) bool {
	for _, m := range t.Members {
		if m == addr {
			return true
		}
	}
	return false
}

func (t *Topology) HasSegments() bool {
	return len(t.Segments) != 0
}

func (t *Topology) SegmentOf(key []byte) int {
	return SegmentOf(Hash(key), len(t.Segments))
}

// Owners returns the servers owning key, primary first, or nil when the
// topology has no segment table.
func (t *Topology) Owners(key []byte) []proto.ServerAddress {
	seg := t.SegmentOf(key)
	if seg < 0 {
		return nil
	}
	owners := make([]proto.ServerAddress, 0, len(t.Segments[seg]))
	for _, idx := range t.Segments[seg] {
		if idx < len(t.Members) {
			owners = append(owners, t.Members[idx])
		}
	}
	return owners
}

func (t *Topology) String() string {
	return fmt.Sprintf("topology{id=%d,members=%v,segments=%d}", t.ID, t.Members, len(t.Segments))
}
