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
	"hotrod/pkg/proto"
)

type IteratorOptions struct {
	// Segments is a bit set of the segments to iterate, nil for all
	Segments      []byte
	Metadata      bool
	FilterFactory string
	FilterParams  [][]byte
}

// Iterator walks the cache in batches fetched from the server that opened
// it. It is not safe for concurrent use.
type Iterator struct {
	c        *clientImpl
	conn     *cli.Connection
	id       string
	metadata bool
	batch    []proto.IteratorEntry
	done     bool
	closed   bool
}

func (c *clientImpl) Iterator(ctx context.Context, batchSize int, opts IteratorOptions) (it *Iterator, err error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if batchSize <= 0 {
		return nil, errors.Newf(errors.KindConfig, "invalid iterator batch size %d", batchSize)
	}
	ctx, span := c.startSpan(ctx, proto.OpCodeIterationStart)
	defer func() { endSpan(span, err) }()

	addr, err := c.route(nil, nil)
	if err != nil {
		return nil, err
	}
	addServerAttr(span, addr, 1)
	conn, err := c.pool.get(ctx, addr)
	if err != nil {
		return nil, err
	}
	h := c.newHeader(conn, proto.OpCodeIterationStart)
	payload, err := c.protocol.EncodeIterationStart(h, &proto.IterationStartRequest{
		Segments:      opts.Segments,
		FilterFactory: opts.FilterFactory,
		FilterParams:  opts.FilterParams,
		BatchSize:     batchSize,
		Metadata:      opts.Metadata,
	})
	if err != nil {
		return nil, err
	}
	v, err := conn.Send(ctx, h.MessageID, payload, proto.DecodeIterationStart)
	if err != nil {
		c.logError(proto.OpCodeIterationStart, addr, err)
		return nil, err
	}
	id, ok := v.(string)
	if !ok {
		return nil, unexpectedValue("IterationStart", v)
	}
	if glog.V(2) {
		glog.Infof("iterator %s opened on %s batch=%d", id, addr, batchSize)
	}
	return &Iterator{c: c, conn: conn, id: id, metadata: opts.Metadata}, nil
}

func (it *Iterator) ID() string {
	return it.id
}

// Next returns the next entry. The bool is false once the server has no
// more entries.
func (it *Iterator) Next(ctx context.Context) (*Entry, bool, error) {
	if it.closed {
		return nil, false, ErrIteratorClosed
	}
	for len(it.batch) == 0 {
		if it.done {
			return nil, false, nil
		}
		if err := it.fetch(ctx); err != nil {
			return nil, false, err
		}
	}
	raw := it.batch[0]
	it.batch = it.batch[1:]

	p := it.c.protocol
	e := &Entry{Metadata: raw.Metadata}
	var err error
	if e.Key, err = p.DecodeKey(raw.Key); err != nil {
		return nil, false, err
	}
	if e.Value, err = p.DecodeValue(raw.Value); err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func (it *Iterator) fetch(ctx context.Context) error {
	p := it.c.protocol
	h := it.c.newHeader(it.conn, proto.OpCodeIterationNext)
	payload, err := p.EncodeIterationID(h, it.id)
	if err != nil {
		return err
	}
	v, err := it.conn.Send(ctx, h.MessageID, payload, p.IterationNextDecoder(it.metadata))
	if err != nil {
		return err
	}
	b, ok := v.(*proto.IterationBatch)
	if !ok {
		return unexpectedValue("IterationNext", v)
	}
	if b.Done() {
		it.done = true
		return nil
	}
	it.batch = b.Entries
	return nil
}

// Close releases the server side iterator. Closing twice is a no-op.
func (it *Iterator) Close(ctx context.Context) error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.batch = nil
	if it.conn.IsClosed() {
		return nil
	}
	p := it.c.protocol
	h := it.c.newHeader(it.conn, proto.OpCodeIterationEnd)
	payload, err := p.EncodeIterationID(h, it.id)
	if err != nil {
		return err
	}
	v, err := it.conn.Send(ctx, h.MessageID, payload, proto.DecodeIterationEnd)
	if err != nil {
		return err
	}
	if found, _ := v.(bool); !found {
		glog.Warningf("iterator %s was unknown to %s", it.id, it.conn.Addr())
	}
	return nil
}
