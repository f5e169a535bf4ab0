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
	"net"
	"strconv"
	"sync"

	"github.com/golang/glog"

	"hotrod/pkg/errors"
	"hotrod/pkg/proto"
)

const DefaultSite = "default"

const kDefaultPort = 11222

type Site struct {
	Name    string
	Servers []proto.ServerAddress
}

// Sites tracks the configured clusters and which one is active. Every
// switch resets the router to the servers of the selected cluster.
type Sites struct {
	mu     sync.Mutex
	router *Router
	sites  []Site // sites[0] is the default cluster
	active int

	// set when the active cluster was reached by Failover
	failedOver bool
}

func NewSites(router *Router, defaultServers []proto.ServerAddress, others []Site) (*Sites, error) {
	s := &Sites{
		router: router,
		sites:  []Site{{Name: DefaultSite, Servers: defaultServers}},
	}
	seen := map[string]bool{DefaultSite: true}
	for _, o := range others {
		if o.Name == "" || seen[o.Name] {
			return nil, errors.Newf(errors.KindConfig, "invalid or duplicate cluster name %q", o.Name)
		}
		if len(o.Servers) == 0 {
			return nil, errors.Newf(errors.KindConfig, "cluster %q has no servers", o.Name)
		}
		seen[o.Name] = true
		s.sites = append(s.sites, o)
	}
	return s, nil
}

func (s *Sites) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sites[s.active].Name
}

func (s *Sites) IsDefault() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active == 0
}

func (s *Sites) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.sites))
	for i, site := range s.sites {
		names[i] = site.Name
	}
	return names
}

// SwitchTo makes the named cluster active. It reports whether the active
// cluster changed.
func (s *Sites) SwitchTo(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, site := range s.sites {
		if site.Name == name {
			s.failedOver = false
			return s.activate(i), nil
		}
	}
	return false, errors.Newf(errors.KindConfig, "unknown cluster %q", name)
}

func (s *Sites) SwitchToDefault() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedOver = false
	return s.activate(0)
}

// Default returns the default cluster.
func (s *Sites) Default() Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sites[0]
}

// Failover activates the next configured cluster after the active one and
// returns its name. With a single cluster it is a no-op.
func (s *Sites) Failover() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sites) > 1 {
		from := s.sites[s.active].Name
		s.activate((s.active + 1) % len(s.sites))
		s.failedOver = s.active != 0
		glog.Warningf("cluster %s failed, failing over to %s", from, s.sites[s.active].Name)
	}
	return s.sites[s.active].Name
}

// FailedOver reports whether a failover moved the client off the default
// cluster and no switch happened since.
func (s *Sites) FailedOver() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failedOver
}

// FailBack returns to the default cluster after a failover. It reports
// false when the client is not failed over, for example because the
// cluster was switched explicitly in the meantime.
func (s *Sites) FailBack() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.failedOver {
		return false
	}
	s.failedOver = false
	s.activate(0)
	glog.Infof("default cluster reachable again, failing back")
	return true
}

func (s *Sites) activate(i int) bool {
	if i == s.active {
		return false
	}
	s.active = i
	s.router.Reset(s.sites[i].Servers)
	glog.Infof("switched to cluster %s %v", s.sites[i].Name, s.sites[i].Servers)
	return true
}

// ParseAddress parses host[:port]; the port defaults to 11222.
func ParseAddress(s string) (proto.ServerAddress, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		if addrErr, ok := err.(*net.AddrError); ok && addrErr.Err == "missing port in address" {
			return proto.ServerAddress{Host: s, Port: kDefaultPort}, nil
		}
		return proto.ServerAddress{}, errors.Wrapf(errors.KindConfig, err, "server address %q", s)
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return proto.ServerAddress{}, errors.Wrapf(errors.KindConfig, err, "server port %q", s)
	}
	return proto.ServerAddress{Host: host, Port: uint16(p)}, nil
}

func ParseAddresses(list []string) ([]proto.ServerAddress, error) {
	out := make([]proto.ServerAddress, 0, len(list))
	for _, a := range list {
		addr, err := ParseAddress(a)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}
