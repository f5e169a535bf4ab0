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
	"net"
	"sync"
	"time"

	"hotrod/pkg/errors"
	"hotrod/pkg/proto"
	"hotrod/pkg/util"
)

// Connection multiplexes pipelined requests over one socket. Responses are
// matched to requests by message id. Send is safe for concurrent use.
type Connection struct {
	addr     proto.ServerAddress
	conn     net.Conn
	opts     Options
	protocol *proto.Protocol
	msgID    util.AtomicUint64Counter

	chRequest chan *RequestContext
	chControl chan func()
	chClose   chan struct{}
	chDone    chan struct{}
	closeOnce sync.Once
	// set by the processing loop before chDone is closed
	err error

	buffer    *proto.ReplayBuffer
	tracker   *PendingTracker
	listeners *ListenerRegistry
}

func newConnection(conn net.Conn, addr proto.ServerAddress, opts Options) *Connection {
	c := &Connection{
		addr:      addr,
		conn:      conn,
		opts:      opts,
		protocol:  opts.Protocol,
		chRequest: make(chan *RequestContext),
		chControl: make(chan func()),
		chClose:   make(chan struct{}),
		chDone:    make(chan struct{}),
		buffer:    proto.NewReplayBuffer(opts.ReadBufferSize),
		tracker:   newPendingTracker(opts.RequestTimeout),
		listeners: NewListenerRegistry(),
	}
	chReader := startResponseReader(conn, opts.ReadBufferSize, c.chDone)
	go func() {
		c.doRequestProcess(chReader)
		close(c.chDone)
		if c.opts.OnClose != nil {
			c.opts.OnClose(c, c.err)
		}
	}()
	return c
}

func (c *Connection) Addr() proto.ServerAddress {
	return c.addr
}

func (c *Connection) Protocol() *proto.Protocol {
	return c.protocol
}

// NextMessageID returns the next message id of this connection.
func (c *Connection) NextMessageID() uint64 {
	return c.msgID.Next()
}

// Send writes an encoded request and waits for the response decoded by
// decoder. Server error frames are returned as KindServer errors.
func (c *Connection) Send(ctx context.Context, msgID uint64, payload []byte, decoder proto.Decoder) (interface{}, error) {
	return c.roundTrip(ctx, NewRequestContext(msgID, payload, decoder))
}

// AddListener sends a listener registration. reg receives events as soon as
// the request is written, and is dropped again if the request fails. When
// the caller gives up or the request times out after it was written, undo,
// if set, encodes the removal sent to the server.
func (c *Connection) AddListener(ctx context.Context, msgID uint64, reg *Registration, payload []byte, decoder proto.Decoder, undo RequestEncoder) (interface{}, error) {
	r := NewRequestContext(msgID, payload, decoder)
	r.register = reg
	r.undo = undo
	return c.roundTrip(ctx, r)
}

// RemoveListener detaches the callbacks of id before the removal request is
// written.
func (c *Connection) RemoveListener(ctx context.Context, msgID uint64, id []byte, payload []byte, decoder proto.Decoder) (interface{}, error) {
	r := NewRequestContext(msgID, payload, decoder)
	r.unregister = id
	return c.roundTrip(ctx, r)
}

func (c *Connection) roundTrip(ctx context.Context, r *RequestContext) (interface{}, error) {
	m := c.opts.Metrics
	timeStart := time.Now()
	m.RequestStarted()

	v, err := c.await(ctx, r)
	m.RequestDone(r.op, err, time.Since(timeStart))
	return v, err
}

func (c *Connection) await(ctx context.Context, r *RequestContext) (interface{}, error) {
	select {
	case c.chRequest <- r:
	case <-c.chDone:
		return nil, closedError(c.err)
	case <-ctx.Done():
		return nil, errors.Wrap(errors.KindTransport, ctx.Err(), "request not sent")
	}
	select {
	case resp := <-r.chResponse:
		if resp.Err != nil {
			return nil, resp.Err
		}
		return resp.Value, nil
	case <-ctx.Done():
		// the loop still owns r and replies into its buffered channel
		if r.register != nil {
			select {
			case c.chControl <- r.abandon:
			case <-c.chDone:
			}
		}
		return nil, errors.Wrap(errors.KindTransport, ctx.Err(), "response not received")
	}
}

// exec runs f on the processing loop.
func (c *Connection) exec(f func()) error {
	done := make(chan struct{})
	select {
	case c.chControl <- func() { f(); close(done) }:
	case <-c.chDone:
		return closedError(c.err)
	}
	<-done
	return nil
}

// PendingCount returns the number of requests waiting for a response.
func (c *Connection) PendingCount() (n int) {
	c.exec(func() { n = c.tracker.Len() })
	return
}

func (c *Connection) HasListener(id []byte) (found bool) {
	c.exec(func() { found = c.listeners.Has(id) })
	return
}

// Close stops the connection. Pending requests fail with a transport error
// and listener registrations are dropped.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.chClose)
	})
	<-c.chDone
	return nil
}

func (c *Connection) Done() <-chan struct{} {
	return c.chDone
}

func (c *Connection) IsClosed() bool {
	select {
	case <-c.chDone:
		return true
	default:
		return false
	}
}

// Err returns the error that stopped the connection, nil while it runs.
func (c *Connection) Err() error {
	select {
	case <-c.chDone:
		return c.err
	default:
		return nil
	}
}
