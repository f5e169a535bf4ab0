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

package cli

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"hotrod/pkg/errors"
	"hotrod/pkg/proto"
)

var ErrProcessorClosed = errors.New(errors.KindTransport, "processor closed")

// ConnectHook runs on every new connection before it is handed out, for
// example to authenticate. A failing hook closes the connection.
type ConnectHook func(ctx context.Context, c *Connection) error

// Processor owns the connection to one server. Get dials on first use and
// replaces a connection that stopped.
type Processor struct {
	addr      proto.ServerAddress
	opts      Options
	onConnect ConnectHook

	mtx    sync.Mutex
	conn   *Connection
	dials  int
	closed bool
}

func NewProcessor(addr proto.ServerAddress, opts Options, onConnect ConnectHook) *Processor {
	return &Processor{
		addr:      addr,
		opts:      opts,
		onConnect: onConnect,
	}
}

func (p *Processor) Addr() proto.ServerAddress {
	return p.addr
}

// Get returns a running connection, dialing when there is none. Concurrent
// callers share one dial.
func (p *Processor) Get(ctx context.Context) (*Connection, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.closed {
		return nil, ErrProcessorClosed
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn, nil
	}
	if p.conn != nil {
		glog.Infof("reconnecting to %s after: %v", p.addr, p.conn.Err())
	}
	p.conn = nil
	conn, err := Dial(ctx, p.addr, p.opts)
	if err != nil {
		return nil, err
	}
	p.dials++
	if p.onConnect != nil {
		if err = p.onConnect(ctx, conn); err != nil {
			conn.Close()
			return nil, err
		}
	}
	p.conn = conn
	return conn, nil
}

// Current returns the connection without dialing, nil when there is none.
func (p *Processor) Current() *Connection {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.conn
}

// Dials returns the number of connections established so far.
func (p *Processor) Dials() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.dials
}

func (p *Processor) Close() {
	p.mtx.Lock()
	conn := p.conn
	p.conn = nil
	p.closed = true
	p.mtx.Unlock()
	if conn != nil {
		conn.Close()
	}
}
