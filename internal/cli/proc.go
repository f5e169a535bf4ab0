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
	goerrors "errors"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/golang/glog"

	"hotrod/pkg/errors"
	"hotrod/pkg/logging"
	"hotrod/pkg/proto"
	"hotrod/pkg/stats"
	"hotrod/pkg/util"
)

type readerChunk struct {
	data []byte
	err  error
}

// startResponseReader copies socket reads onto a channel until the socket
// fails or done is closed. The last chunk carries the read error.
func startResponseReader(r io.Reader, bufSize int, done <-chan struct{}) <-chan *readerChunk {
	chReader := make(chan *readerChunk, 2)
	go func() {
		defer func() {
			close(chReader)
			if glog.V(3) {
				glog.Info("reader exits")
			}
		}()

		for {
			buf := make([]byte, bufSize)
			n, err := r.Read(buf)
			if n > 0 {
				select {
				case chReader <- &readerChunk{data: buf[:n]}:
				case <-done:
					return
				}
			}
			if err == nil {
				continue
			}
			logReadError(err)
			select {
			case chReader <- &readerChunk{err: err}:
			case <-done:
			}
			return
		}
	}()
	return chReader
}

func logReadError(err error) {
	if err == io.EOF {
		glog.V(2).Infoln(err)
		return
	}
	if opErr, ok := err.(*net.OpError); ok {
		if sErr, ok := opErr.Err.(*os.SyscallError); ok && sErr.Err == syscall.ECONNRESET {
			glog.V(2).Infoln(err)
			return
		}
	}
	if goerrors.Is(err, net.ErrClosed) {
		return
	}
	glog.Warningln(err)
}

// doRequestProcess is the processing loop. It is the only goroutine that
// touches the replay buffer, the pending tracker and the listener registry.
func (c *Connection) doRequestProcess(chReader <-chan *readerChunk) {
	var err error

loop:
	for {
		select {
		case <-c.chClose:
			if glog.V(3) {
				glog.Info("proc close channel got notified")
			}
			err = errConnectionClosed
			break loop

		case now := <-c.tracker.GetTimeoutCh():
			c.tracker.OnTimeout(now)

		case f := <-c.chControl:
			f()

		case r := <-c.chRequest:
			if err = c.write(r); err != nil {
				break loop
			}

		case chunk, ok := <-chReader:
			if !ok {
				err = errors.New(errors.KindTransport, "reader closed")
				break loop
			}
			if chunk.err != nil {
				err = errors.Wrapf(errors.KindTransport, chunk.err, "read from %s", c.addr)
				break loop
			}
			c.buffer.Append(chunk.data)
			if err = c.processBuffer(); err != nil {
				break loop
			}
		}
	}
	c.teardown(err)
}

func (c *Connection) write(r *RequestContext) error {
	if r.register != nil {
		reg := r.register
		undo := r.undo
		c.listeners.Add(reg)
		r.rollback = func(remote bool) {
			c.listeners.Detach(reg)
			if remote && undo != nil && !c.listeners.Has(reg.id) {
				c.sendUndo(reg.id, undo)
			}
		}
	}
	if r.unregister != nil {
		c.listeners.Remove(r.unregister)
	}
	if err := c.tracker.OnRequestSent(r); err != nil {
		r.ReplyError(err)
		return nil
	}
	if c.opts.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	if _, err := c.conn.Write(r.payload); err != nil {
		return errors.Wrapf(errors.KindTransport, err, "write to %s", c.addr)
	}
	if glog.V(4) {
		glog.Infof("proc -> %s", logging.NewKVBufferForLog().AddMessageID(r.msgID).
			AddOpCode(r.op).AddPayloadLen(len(r.payload)).String())
	}
	return nil
}

// sendUndo removes a listener the server may hold for a registration that
// was given up. The reply is only logged.
func (c *Connection) sendUndo(id []byte, undo RequestEncoder) {
	msgID, payload := undo()
	r := NewRequestContext(msgID, payload, proto.DecodeNone)
	go func() {
		// bounded by the request timeout of the tracker
		if _, err := c.roundTrip(context.Background(), r); err != nil {
			glog.Warningf("remove abandoned listener %x on %s: %s", id, c.addr, err)
		} else if glog.V(2) {
			glog.Infof("abandoned listener %x removed on %s", id, c.addr)
		}
	}()
}

// processBuffer decodes every complete frame in the buffer. A frame that is
// not fully buffered is rewound and left for the next read.
func (c *Connection) processBuffer() error {
	defer c.buffer.Trim()
	for !c.buffer.IsEmpty() {
		cur := c.buffer.Mark()
		start := cur.Offset()
		err := c.processFrame(cur)
		if err == proto.ErrIncomplete {
			c.buffer.Rewind()
			return nil
		}
		if err != nil {
			glog.Errorf("decode error from %s: %s", c.addr, err)
			if glog.V(2) {
				glog.Infof("frame from %s:\n%s", c.addr, util.HexDumpString(cur.Bytes()[start:]))
			}
			return errors.Wrapf(errors.KindProtocol, err, "decode frame from %s", c.addr)
		}
	}
	return nil
}

func (c *Connection) processFrame(cur *proto.ByteCursor) error {
	h, err := c.protocol.ReadResponseHeader(cur)
	if err != nil {
		return err
	}
	if glog.V(4) {
		glog.Infof("proc <- %s", logging.NewKVBufferForLog().AddResponseHeader(h).String())
	}

	switch {
	case h.IsEvent():
		ev, err := proto.ReadEvent(cur, h)
		if err != nil {
			return err
		}
		c.onTopology(h)
		c.dispatch(ev)

	case h.IsError():
		msg, err := proto.ReadErrorBody(cur)
		if err != nil {
			return err
		}
		c.onTopology(h)
		r := c.tracker.OnResponseReceived(h.MessageID)
		if r == nil {
			glog.Warningf("server error for unknown message %d from %s: %s", h.MessageID, c.addr, msg)
			return nil
		}
		r.ReplyError(errors.Newf(errors.KindServer, "%s (status %s)", msg, h.Status))

	default:
		reqCtx, decoder, found := c.tracker.Lookup(h.MessageID)
		if !found {
			return proto.NewProtocolErrorf("response %s for unknown message %d", h.Op, h.MessageID)
		}
		if reqCtx != nil && h.Op != reqCtx.op.Response() {
			return proto.NewProtocolErrorf("response %s to request %s", h.Op, reqCtx.op)
		}
		v, err := decoder(cur, h)
		var sErr *proto.StatusError
		if goerrors.As(err, &sErr) {
			c.onTopology(h)
			if r := c.tracker.OnResponseReceived(h.MessageID); r != nil {
				r.ReplyError(errors.Wrapf(errors.KindServer, sErr, "message %d", h.MessageID))
			}
			return nil
		}
		if err != nil {
			return err
		}
		c.onTopology(h)
		if r := c.tracker.OnResponseReceived(h.MessageID); r != nil {
			r.Reply(h, v)
		}
	}
	return nil
}

func (c *Connection) onTopology(h *proto.ResponseHeader) {
	if h.Topology != nil && c.opts.OnTopology != nil {
		c.opts.OnTopology(c.addr, h.Topology)
	}
}

func (c *Connection) dispatch(ev *proto.Event) {
	if ev.Custom {
		if err := ev.DecodeCustom(c.protocol.Config().ValueCodec); err != nil {
			glog.Warningf("listener %x: %s", ev.ListenerID,
				errors.Wrap(errors.KindListener, err, "decode custom event"))
		}
	}
	if c.listeners.Dispatch(ev) > 0 {
		c.opts.Metrics.EventDispatched(ev.Type)
	}
}

func (c *Connection) teardown(err error) {
	c.conn.Close()
	if err != errConnectionClosed {
		c.opts.Metrics.ConnectionEvent(stats.ConnBroken)
		glog.Warningf("connection to %s stopped: %s", c.addr, err)
	} else {
		c.opts.Metrics.ConnectionEvent(stats.ConnClosed)
	}
	c.err = err
	c.tracker.ClearOnError(err)
	c.listeners.Clear()
}
