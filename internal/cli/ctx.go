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
	"time"

	"github.com/golang/glog"

	"hotrod/pkg/proto"
)

// Response is what a RequestContext delivers to its caller. Value and Err
// are mutually exclusive.
type Response struct {
	Value  interface{}
	Err    error
	Header *proto.ResponseHeader
}

type RequestContext struct {
	msgID      uint64
	op         proto.OpCode
	payload    []byte
	decoder    proto.Decoder
	chResponse chan *Response
	timeSent   time.Time
	replied    bool

	// listener side effects applied by the processing loop
	register   *Registration
	unregister []byte
	undo       RequestEncoder

	// remote reports whether the server may have applied the request
	rollback func(remote bool)
}

// RequestEncoder builds a request on demand, returning its message id and
// encoded bytes.
type RequestEncoder func() (msgID uint64, payload []byte)

// NewRequestContext returns a context whose response channel holds exactly
// one reply, so the loop never blocks on a caller that went away.
func NewRequestContext(msgID uint64, payload []byte, decoder proto.Decoder) *RequestContext {
	return &RequestContext{
		msgID:      msgID,
		op:         peekOpCode(payload),
		payload:    payload,
		decoder:    decoder,
		chResponse: make(chan *Response, 1),
	}
}

func (r *RequestContext) GetMessageID() uint64 {
	return r.msgID
}

func (r *RequestContext) GetOpCode() proto.OpCode {
	return r.op
}

func (r *RequestContext) Reply(h *proto.ResponseHeader, value interface{}) {
	if r.replied {
		glog.Warningf("duplicate reply for message %d", r.msgID)
		return
	}
	r.replied = true
	r.chResponse <- &Response{Value: value, Header: h}
}

// ReplyError fails the request. A listener registration carried by the
// request is rolled back first.
func (r *RequestContext) ReplyError(err error) {
	r.fail(err, false)
}

// replyTimeout fails a request that was written but not answered in time.
func (r *RequestContext) replyTimeout(err error) {
	r.fail(err, true)
}

func (r *RequestContext) fail(err error, remote bool) {
	if r.replied {
		return
	}
	r.replied = true
	if r.rollback != nil {
		r.rollback(remote)
		r.rollback = nil
	}
	if glog.V(2) {
		glog.InfoDepth(2, "request ", r.msgID, " failed: ", err)
	}
	r.chResponse <- &Response{Err: err}
}

// abandon undoes the listener side effects of a written request whose
// caller stopped waiting, whether or not it has been answered. It runs on
// the processing loop.
func (r *RequestContext) abandon() {
	if r.rollback != nil {
		r.rollback(true)
		r.rollback = nil
	}
}

// peekOpCode reads the opcode out of an encoded request header: magic,
// message id VLong, version, opcode.
func peekOpCode(b []byte) proto.OpCode {
	i := 1
	for i < len(b) && b[i] >= 0x80 {
		i++
	}
	i += 2
	if i >= len(b) {
		return 0
	}
	return proto.OpCode(b[i])
}
