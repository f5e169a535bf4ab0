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

	"github.com/golang/glog"

	"hotrod/internal/cli"
	"hotrod/pkg/errors"
	"hotrod/pkg/logging"
	"hotrod/pkg/proto"
)

// Listener is a remote listener registered over one connection. Its events
// stop when that connection closes.
type Listener struct {
	id   []byte
	conn *cli.Connection
}

func (l *Listener) ID() []byte {
	return l.id
}

func (l *Listener) Addr() proto.ServerAddress {
	return l.conn.Addr()
}

// Done is closed when the connection carrying the listener stopped.
func (l *Listener) Done() <-chan struct{} {
	return l.conn.Done()
}

// AddListener registers handlers by event type. With WithIncludeState the
// created events of the existing entries are delivered before it returns.
func (c *clientImpl) AddListener(ctx context.Context, handlers map[proto.EventType]EventHandler, opts ...IOption) (l *Listener, err error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	options := newOptionData(opts...)
	ctx, span := c.startSpan(ctx, proto.OpCodeAddClientListener)
	defer func() { endSpan(span, err) }()

	id := options.listenerID
	if id == nil {
		id = cli.NewListenerID()
	}
	reg := cli.NewRegistration(id)
	for typ, h := range handlers {
		reg.On(typ, h)
	}
	interests := options.interests
	if interests == 0 {
		interests = proto.InterestAll
	}
	req := &proto.AddListenerRequest{
		ListenerID:       id,
		IncludeState:     options.includeState,
		FilterFactory:    options.filter.name,
		FilterParams:     options.filter.params,
		ConverterFactory: options.converter.name,
		ConverterParams:  options.converter.params,
		RawData:          options.rawData,
		Interests:        interests,
	}

	addr, err := c.route(nil, nil)
	if err != nil {
		return nil, err
	}
	addServerAttr(span, addr, 1)
	conn, err := c.pool.get(ctx, addr)
	if err != nil {
		return nil, err
	}
	undo := func() (uint64, []byte) {
		h := c.newHeader(conn, proto.OpCodeRemoveClientListener)
		return h.MessageID, c.protocol.EncodeRemoveListener(h, id)
	}
	h := c.newHeader(conn, proto.OpCodeAddClientListener)
	if _, err = conn.AddListener(ctx, h.MessageID, reg, c.protocol.EncodeAddListener(h, req), proto.DecodeNone, undo); err != nil {
		c.logError(proto.OpCodeAddClientListener, addr, err)
		return nil, errors.Wrap(errors.KindListener, err, "add listener")
	}
	if glog.V(2) {
		b := logging.NewKVBufferForLog()
		b.AddListenerID(id).AddAddr(addr).AddInt([]byte("interests"), int(interests))
		glog.Infof("listener added %s", b.String())
	}
	return &Listener{id: id, conn: conn}, nil
}

// RemoveListener unregisters l. A listener whose connection already closed
// is gone and removing it succeeds.
func (c *clientImpl) RemoveListener(ctx context.Context, l *Listener) (err error) {
	if l == nil || l.conn.IsClosed() || !l.conn.HasListener(l.id) {
		return nil
	}
	ctx, span := c.startSpan(ctx, proto.OpCodeRemoveClientListener)
	defer func() { endSpan(span, err) }()

	h := c.newHeader(l.conn, proto.OpCodeRemoveClientListener)
	_, err = l.conn.RemoveListener(ctx, h.MessageID, l.id, c.protocol.EncodeRemoveListener(h, l.id), proto.DecodeNone)
	if err != nil {
		c.logError(proto.OpCodeRemoveClientListener, l.conn.Addr(), err)
		return errors.Wrap(errors.KindListener, err, "remove listener")
	}
	return nil
}
