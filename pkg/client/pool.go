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

package client

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"hotrod/internal/cli"
	"hotrod/pkg/proto"
)

// connPool keeps one processor per server address.
type connPool struct {
	opts cli.Options
	hook cli.ConnectHook

	mtx    sync.Mutex
	procs  map[proto.ServerAddress]*cli.Processor
	closed bool

	// servers whose last connection attempt failed or whose connection broke
	down map[proto.ServerAddress]bool
}

func newConnPool(opts cli.Options, hook cli.ConnectHook) *connPool {
	return &connPool{
		opts:  opts,
		hook:  hook,
		procs: make(map[proto.ServerAddress]*cli.Processor),
		down:  make(map[proto.ServerAddress]bool),
	}
}

func (p *connPool) processor(addr proto.ServerAddress) (*cli.Processor, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	proc, ok := p.procs[addr]
	if !ok {
		proc = cli.NewProcessor(addr, p.opts, p.hook)
		p.procs[addr] = proc
	}
	return proc, nil
}

func (p *connPool) get(ctx context.Context, addr proto.ServerAddress) (*cli.Connection, error) {
	proc, err := p.processor(addr)
	if err != nil {
		return nil, err
	}
	return proc.Get(ctx)
}

// retain closes the processors of servers not in members.
func (p *connPool) retain(members []proto.ServerAddress) {
	keep := make(map[proto.ServerAddress]bool, len(members))
	for _, m := range members {
		keep[m] = true
	}
	var stale []*cli.Processor
	p.mtx.Lock()
	for addr, proc := range p.procs {
		if !keep[addr] {
			stale = append(stale, proc)
			delete(p.procs, addr)
		}
	}
	for addr := range p.down {
		if !keep[addr] {
			delete(p.down, addr)
		}
	}
	p.mtx.Unlock()
	for _, proc := range stale {
		glog.Infof("closing connection to %s, no longer a member", proc.Addr())
		proc.Close()
	}
}

func (p *connPool) markDown(addr proto.ServerAddress) {
	p.mtx.Lock()
	p.down[addr] = true
	p.mtx.Unlock()
}

func (p *connPool) markUp(addr proto.ServerAddress) {
	p.mtx.Lock()
	delete(p.down, addr)
	p.mtx.Unlock()
}

// unreachable reports whether every server in members is marked down.
func (p *connPool) unreachable(members []proto.ServerAddress) bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if len(members) == 0 {
		return false
	}
	for _, m := range members {
		if !p.down[m] {
			return false
		}
	}
	return true
}

// reach dials addr with the pool settings and closes the connection again.
func (p *connPool) reach(ctx context.Context, addr proto.ServerAddress) error {
	proc := cli.NewProcessor(addr, p.opts, p.hook)
	defer proc.Close()
	_, err := proc.Get(ctx)
	return err
}

// current returns the running connection to addr without dialing.
func (p *connPool) current(addr proto.ServerAddress) *cli.Connection {
	p.mtx.Lock()
	proc := p.procs[addr]
	p.mtx.Unlock()
	if proc == nil {
		return nil
	}
	return proc.Current()
}

func (p *connPool) size() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return len(p.procs)
}

func (p *connPool) close() {
	p.mtx.Lock()
	procs := p.procs
	p.procs = nil
	p.closed = true
	p.mtx.Unlock()
	for _, proc := range procs {
		proc.Close()
	}
}
