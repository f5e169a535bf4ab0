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
	"sync/atomic"

	"github.com/golang/glog"

	"hotrod/pkg/proto"
)

// Router answers which server a request should go to. Readers load the
// current Topology with one atomic read; updates swap in a new snapshot.
type Router struct {
	topo atomic.Pointer[Topology]
	rr   atomic.Uint32
}

func NewRouter(seeds []proto.ServerAddress) *Router {
	r := &Router{}
	r.topo.Store(seedTopology(seeds))
	return r
}

func (r *Router) Topology() *Topology {
	return r.topo.Load()
}

func (r *Router) TopologyID() uint32 {
	return r.topo.Load().ID
}

// Update installs a topology received from a server. Updates not newer
// than the installed server topology are ignored. It reports whether the
// snapshot changed.
func (r *Router) Update(u *proto.TopologyUpdate) bool {
	return r.update(nil, u)
}

// UpdateFrom is Update for a topology received over the connection to
// from. It is ignored unless from is a member of the installed snapshot,
// so a frame read on the connection to a cluster that was switched away
// from cannot reinstall it.
func (r *Router) UpdateFrom(from proto.ServerAddress, u *proto.TopologyUpdate) bool {
	return r.update(&from, u)
}

func (r *Router) update(from *proto.ServerAddress, u *proto.TopologyUpdate) bool {
	next := NewTopology(u)
	for {
		cur := r.topo.Load()
		if from != nil && !cur.HasMember(*from) {
			if glog.V(2) {
				glog.Infof("ignore topology %d from %s, not a member of %v", u.ID, *from, cur.Members)
			}
			return false
		}
		if cur.fromServer && u.ID <= cur.ID {
			if glog.V(2) {
				glog.Infof("ignore topology %d, current %d", u.ID, cur.ID)
			}
			return false
		}
		if r.topo.CompareAndSwap(cur, next) {
			glog.Infof("new topology id=%d members=%v segments=%d", next.ID, next.Members, len(next.Segments))
			return true
		}
	}
}

// Reset replaces the topology with a seed list, for cluster switches.
func (r *Router) Reset(seeds []proto.ServerAddress) {
	r.topo.Store(seedTopology(seeds))
}

func (r *Router) Members() []proto.ServerAddress {
	return r.topo.Load().Members
}

func (r *Router) FindOwners(key []byte) []proto.ServerAddress {
	return r.topo.Load().Owners(key)
}

// Primary returns the primary owner of key, or the next round robin member
// when the topology has no segment table.
func (r *Router) Primary(key []byte) (proto.ServerAddress, bool) {
	t := r.topo.Load()
	if owners := t.Owners(key); len(owners) != 0 {
		return owners[0], true
	}
	return r.next(t)
}

func (r *Router) NextRoundRobin() (proto.ServerAddress, bool) {
	return r.next(r.topo.Load())
}

func (r *Router) next(t *Topology) (proto.ServerAddress, bool) {
	if len(t.Members) == 0 {
		return proto.ServerAddress{}, false
	}
	n := r.rr.Add(1) - 1
	return t.Members[n%uint32(len(t.Members))], true
}
