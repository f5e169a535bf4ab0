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

package mock

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"hotrod/pkg/proto"
)

type iteration struct {
	entries  []proto.IteratorEntry
	batch    int
	metadata bool
}

type session struct {
	srv  *Server
	conn net.Conn
	buf  *proto.ReplayBuffer

	wmtx sync.Mutex

	lmtx      sync.Mutex
	listeners map[string]*proto.AddListenerRequest

	iterators map[string]*iteration
	nextIter  int
}

func newSession(srv *Server, conn net.Conn) *session {
	return &session{
		srv:       srv,
		conn:      conn,
		buf:       proto.NewReplayBuffer(4096),
		listeners: make(map[string]*proto.AddListenerRequest),
		iterators: make(map[string]*iteration),
	}
}

func (s *session) run() {
	defer s.conn.Close()
	raw := make([]byte, 4096)
	for {
		n, err := s.conn.Read(raw)
		if n > 0 {
			s.buf.Append(raw[:n])
			if perr := s.process(); perr != nil {
				s.srv.logf("closing session: %s", perr)
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// process handles every complete request in the buffer.
func (s *session) process() error {
	for !s.buf.IsEmpty() {
		c := s.buf.Mark()
		req, err := proto.ReadRequestHeader(c)
		if err == nil {
			err = s.handle(req, c)
		}
		if err == proto.ErrIncomplete {
			s.buf.Rewind()
			return nil
		}
		if err != nil {
			return err
		}
		s.buf.Trim()
	}
	return nil
}

type reply struct {
	status proto.OpStatus
	body   *proto.ByteCursor
	// events queued before the response, as include state does
	before []*proto.Event
	// errMsg turns the reply into an error frame
	errMsg    string
	errStatus proto.OpStatus
}

func okReply() *reply {
	return &reply{status: proto.OpStatusSuccess, body: proto.NewByteCursorWithSize(32)}
}

func statusReply(st proto.OpStatus) *reply {
	r := okReply()
	r.status = st
	return r
}

func errorReply(st proto.OpStatus, msg string) *reply {
	return &reply{errStatus: st, errMsg: msg}
}

// previousReply answers a write that returns the previous value on request.
func previousReply(req *proto.IncomingRequest, st proto.OpStatus, prev []byte, existed bool) *reply {
	if !existed || req.Flags&proto.FlagForceReturnValue == 0 {
		return statusReply(st)
	}
	switch st {
	case proto.OpStatusSuccess:
		st = proto.OpStatusSuccessWithPrevious
	case proto.OpStatusNotExecuted:
		st = proto.OpStatusNotExecutedWithPrevious
	}
	r := statusReply(st)
	r.body.WriteBytes(prev)
	return r
}

// handle decodes the whole body before acting on it, so an incomplete
// request has no side effects.
func (s *session) handle(req *proto.IncomingRequest, c *proto.ByteCursor) error {
	r, events, err := s.execute(req, c)
	if err != nil {
		return err
	}
	mock := s.srv.takeMock(req.Op)
	if mock != nil {
		s.srv.logf("request %d %s overridden: %s", req.MessageID, req.Op, mock.ToString())
		if mock.NoResponse {
			return nil
		}
		switch {
		case mock.Error != "":
			r = errorReply(proto.OpStatusServerError, mock.Error)
		case mock.Status != 0:
			r = statusReply(mock.Status)
		}
	}
	frame := s.encodeReply(req, r)
	send := func() {
		for _, e := range r.before {
			s.writeEvent(e)
		}
		s.write(frame)
		for _, ev := range events {
			s.srv.Emit(ev.Op, ev.Key, ev.Version)
		}
	}
	if mock != nil && mock.Delay > 0 {
		time.AfterFunc(mock.Delay, send)
		return nil
	}
	send()
	return nil
}

func (s *session) encodeReply(req *proto.IncomingRequest, r *reply) []byte {
	h := &proto.ResponseHeader{MessageID: req.MessageID, Op: req.Op.Response(), Status: r.status}
	if t := s.srv.currentTopology(); t != nil && req.Intelligence >= proto.IntelligenceTopologyAware && t.ID != req.TopologyID {
		h.Topology = t
	}
	c := proto.NewByteCursorWithSize(64)
	if r.errMsg != "" {
		h.Op = proto.OpCodeError
		h.Status = r.errStatus
		proto.WriteResponseHeader(c, h, req.Intelligence)
		c.WriteString(r.errMsg)
		return c.Bytes()
	}
	proto.WriteResponseHeader(c, h, req.Intelligence)
	c.WriteFixed(r.body.Bytes())
	return c.Bytes()
}

type change struct {
	Op      proto.OpCode
	Key     []byte
	Version int64
}

func writeChange(key []byte, existed bool, version int64) change {
	op := proto.OpCodeCacheEntryCreated
	if existed {
		op = proto.OpCodeCacheEntryModified
	}
	return change{Op: op, Key: key, Version: version}
}

func (s *session) execute(req *proto.IncomingRequest, c *proto.ByteCursor) (*reply, []change, error) {
	st := s.srv.store
	switch req.Op {
	case proto.OpCodePut, proto.OpCodePutIfAbsent, proto.OpCodeReplace:
		key, err := c.ReadBytes()
		if err != nil {
			return nil, nil, err
		}
		lifespan, maxIdle, err := proto.ReadExpiry(c)
		if err != nil {
			return nil, nil, err
		}
		value, err := c.ReadBytes()
		if err != nil {
			return nil, nil, err
		}
		cur, existed := st.Get(key)
		if (req.Op == proto.OpCodePutIfAbsent && existed) || (req.Op == proto.OpCodeReplace && !existed) {
			return previousReply(req, proto.OpStatusNotExecuted, cur, existed), nil, nil
		}
		prev, existed, version := st.put(key, value, lifespan, maxIdle)
		return previousReply(req, proto.OpStatusSuccess, prev, existed), []change{writeChange(key, existed, version)}, nil

	case proto.OpCodeReplaceIfUnmodified:
		key, err := c.ReadBytes()
		if err != nil {
			return nil, nil, err
		}
		lifespan, maxIdle, err := proto.ReadExpiry(c)
		if err != nil {
			return nil, nil, err
		}
		version, err := c.ReadInt64()
		if err != nil {
			return nil, nil, err
		}
		value, err := c.ReadBytes()
		if err != nil {
			return nil, nil, err
		}
		cur, existed := st.Get(key)
		if !existed {
			return statusReply(proto.OpStatusNotFound), nil, nil
		}
		if v, _ := st.versionOf(key); v != version {
			return previousReply(req, proto.OpStatusNotExecuted, cur, true), nil, nil
		}
		prev, _, nv := st.put(key, value, lifespan, maxIdle)
		return previousReply(req, proto.OpStatusSuccess, prev, true), []change{writeChange(key, true, nv)}, nil

	case proto.OpCodeGet, proto.OpCodeContainsKey, proto.OpCodeGetWithMetadata, proto.OpCodeRemove:
		key, err := c.ReadBytes()
		if err != nil {
			return nil, nil, err
		}
		switch req.Op {
		case proto.OpCodeGet:
			v, ok := st.Get(key)
			if !ok {
				return statusReply(proto.OpStatusNotFound), nil, nil
			}
			r := okReply()
			r.body.WriteBytes(v)
			return r, nil, nil
		case proto.OpCodeContainsKey:
			if _, ok := st.Get(key); !ok {
				return statusReply(proto.OpStatusNotFound), nil, nil
			}
			return okReply(), nil, nil
		case proto.OpCodeGetWithMetadata:
			m, v, ok := st.metadata(key)
			if !ok {
				return statusReply(proto.OpStatusNotFound), nil, nil
			}
			r := okReply()
			proto.WriteMetadata(r.body, m)
			r.body.WriteBytes(v)
			return r, nil, nil
		}
		prev, existed := st.remove(key)
		if !existed {
			return statusReply(proto.OpStatusNotFound), nil, nil
		}
		return previousReply(req, proto.OpStatusSuccess, prev, true),
			[]change{{Op: proto.OpCodeCacheEntryRemoved, Key: key}}, nil

	case proto.OpCodeRemoveIfUnmodified:
		key, err := c.ReadBytes()
		if err != nil {
			return nil, nil, err
		}
		version, err := c.ReadInt64()
		if err != nil {
			return nil, nil, err
		}
		cur, existed := st.Get(key)
		if !existed {
			return statusReply(proto.OpStatusNotFound), nil, nil
		}
		if v, _ := st.versionOf(key); v != version {
			return previousReply(req, proto.OpStatusNotExecuted, cur, true), nil, nil
		}
		prev, _ := st.remove(key)
		return previousReply(req, proto.OpStatusSuccess, prev, true),
			[]change{{Op: proto.OpCodeCacheEntryRemoved, Key: key}}, nil

	case proto.OpCodeClear:
		st.Clear()
		return okReply(), nil, nil

	case proto.OpCodeSize:
		r := okReply()
		r.body.WriteUVarint64(uint64(st.Len()))
		return r, nil, nil

	case proto.OpCodeStats:
		r := okReply()
		stats := [][2]string{
			{"currentNumberOfEntries", strconv.Itoa(st.Len())},
			{"totalNumberOfEntries", strconv.Itoa(st.Len())},
			{"timeSinceStart", "1"},
		}
		r.body.WriteUVarint32(uint32(len(stats)))
		for _, kv := range stats {
			r.body.WriteString(kv[0])
			r.body.WriteString(kv[1])
		}
		return r, nil, nil

	case proto.OpCodePing:
		return s.ping(req), nil, nil

	case proto.OpCodePutAll:
		lifespan, maxIdle, err := proto.ReadExpiry(c)
		if err != nil {
			return nil, nil, err
		}
		n, err := c.ReadVInt()
		if err != nil {
			return nil, nil, err
		}
		entries := make([]proto.KeyValue, 0, n)
		for i := 0; i < n; i++ {
			k, err := c.ReadBytes()
			if err != nil {
				return nil, nil, err
			}
			v, err := c.ReadBytes()
			if err != nil {
				return nil, nil, err
			}
			entries = append(entries, proto.KeyValue{Key: k, Value: v})
		}
		var changes []change
		for _, e := range entries {
			_, existed, version := st.put(e.Key, e.Value, lifespan, maxIdle)
			changes = append(changes, writeChange(e.Key, existed, version))
		}
		return okReply(), changes, nil

	case proto.OpCodeGetAll:
		n, err := c.ReadVInt()
		if err != nil {
			return nil, nil, err
		}
		keys := make([][]byte, 0, n)
		for i := 0; i < n; i++ {
			k, err := c.ReadBytes()
			if err != nil {
				return nil, nil, err
			}
			keys = append(keys, k)
		}
		var found []proto.KeyValue
		for _, k := range keys {
			if v, ok := st.Get(k); ok {
				found = append(found, proto.KeyValue{Key: k, Value: v})
			}
		}
		r := okReply()
		r.body.WriteUVarint32(uint32(len(found)))
		for _, kv := range found {
			r.body.WriteBytes(kv.Key)
			r.body.WriteBytes(kv.Value)
		}
		return r, nil, nil

	case proto.OpCodeAuthMechList:
		r := okReply()
		r.body.WriteUVarint32(uint32(len(s.srv.cfg.Mechanisms)))
		for _, m := range s.srv.cfg.Mechanisms {
			r.body.WriteString(m)
		}
		return r, nil, nil

	case proto.OpCodeAuth:
		mech, err := c.ReadString()
		if err != nil {
			return nil, nil, err
		}
		response, err := c.ReadBytes()
		if err != nil {
			return nil, nil, err
		}
		return s.auth(mech, response), nil, nil

	case proto.OpCodeAddClientListener:
		lr, err := proto.ReadAddListener(c, req.Version)
		if err != nil {
			return nil, nil, err
		}
		r := okReply()
		s.lmtx.Lock()
		s.listeners[string(lr.ListenerID)] = lr
		s.lmtx.Unlock()
		if lr.IncludeState {
			for _, e := range st.snapshot() {
				r.before = append(r.before, &proto.Event{
					ListenerID: lr.ListenerID,
					Op:         proto.OpCodeCacheEntryCreated,
					Key:        e.Key,
					Version:    e.Metadata.Version,
				})
			}
		}
		return r, nil, nil

	case proto.OpCodeRemoveClientListener:
		id, err := c.ReadBytes()
		if err != nil {
			return nil, nil, err
		}
		s.lmtx.Lock()
		_, ok := s.listeners[string(id)]
		delete(s.listeners, string(id))
		s.lmtx.Unlock()
		if !ok {
			return statusReply(proto.OpStatusNotFound), nil, nil
		}
		return okReply(), nil, nil

	case proto.OpCodeIterationStart:
		ir, err := proto.ReadIterationStart(c)
		if err != nil {
			return nil, nil, err
		}
		s.nextIter++
		id := fmt.Sprintf("iter-%d", s.nextIter)
		batch := ir.BatchSize
		if batch <= 0 {
			batch = 1
		}
		s.iterators[id] = &iteration{entries: st.snapshot(), batch: batch, metadata: ir.Metadata}
		r := okReply()
		r.body.WriteString(id)
		return r, nil, nil

	case proto.OpCodeIterationNext, proto.OpCodeIterationEnd:
		id, err := c.ReadString()
		if err != nil {
			return nil, nil, err
		}
		it, ok := s.iterators[id]
		if req.Op == proto.OpCodeIterationEnd {
			delete(s.iterators, id)
			if !ok {
				return statusReply(proto.OpStatusNotFound), nil, nil
			}
			return okReply(), nil, nil
		}
		if !ok {
			return errorReply(proto.OpStatusServerError, "unknown iteration id "+id), nil, nil
		}
		n := it.batch
		if n > len(it.entries) {
			n = len(it.entries)
		}
		b := &proto.IterationBatch{FinishedSegments: []byte{}, Entries: it.entries[:n]}
		it.entries = it.entries[n:]
		r := okReply()
		proto.WriteIterationBatch(r.body, b, it.metadata)
		return r, nil, nil
	}
	return errorReply(proto.OpStatusUnknownCommand, "unknown operation "+req.Op.String()), nil, nil
}

func (s *session) ping(req *proto.IncomingRequest) *reply {
	r := okReply()
	if req.Version < proto.Version29 {
		return r
	}
	key, value := req.KeyMediaType, req.ValueMediaType
	if key == nil {
		key = &proto.MediaType{Name: proto.MediaTypeUnknown}
	}
	if value == nil {
		value = &proto.MediaType{Name: proto.MediaTypeUnknown}
	}
	proto.WriteMediaType(r.body, key)
	proto.WriteMediaType(r.body, value)
	if req.Version < proto.Version30 {
		return r
	}
	r.body.WriteByte(byte(s.srv.cfg.ServerVersion))
	ops := []proto.OpCode{
		proto.OpCodePut, proto.OpCodeGet, proto.OpCodePutIfAbsent, proto.OpCodeReplace,
		proto.OpCodeReplaceIfUnmodified, proto.OpCodeRemove, proto.OpCodeRemoveIfUnmodified,
		proto.OpCodeContainsKey, proto.OpCodeClear, proto.OpCodeStats, proto.OpCodePing,
		proto.OpCodeGetWithMetadata, proto.OpCodeAuthMechList, proto.OpCodeAuth,
		proto.OpCodeAddClientListener, proto.OpCodeRemoveClientListener, proto.OpCodeSize,
		proto.OpCodePutAll, proto.OpCodeGetAll, proto.OpCodeIterationStart,
		proto.OpCodeIterationNext, proto.OpCodeIterationEnd,
	}
	r.body.WriteUVarint32(uint32(len(ops)))
	for _, op := range ops {
		r.body.WriteUint16(uint16(op))
	}
	return r
}

// auth only implements PLAIN: [authzid] NUL authcid NUL passwd.
func (s *session) auth(mech string, response []byte) *reply {
	if mech != "PLAIN" {
		return errorReply(proto.OpStatusServerError, "unsupported mechanism "+mech)
	}
	parts := bytes.Split(response, []byte{0})
	if len(parts) != 3 {
		return errorReply(proto.OpStatusServerError, "malformed PLAIN response")
	}
	user, pass := string(parts[1]), string(parts[2])
	if want, ok := s.srv.cfg.Users[user]; !ok || want != pass {
		return errorReply(proto.OpStatusServerError, "authentication failed for "+user)
	}
	r := okReply()
	r.body.WriteByte(1)
	r.body.WriteBytes(nil)
	return r
}

func eventInterest(op proto.OpCode) proto.EventInterest {
	switch op {
	case proto.OpCodeCacheEntryCreated:
		return proto.InterestCreated
	case proto.OpCodeCacheEntryModified:
		return proto.InterestModified
	case proto.OpCodeCacheEntryRemoved:
		return proto.InterestRemoved
	}
	return proto.InterestExpired
}

func (s *session) listenerCount() int {
	s.lmtx.Lock()
	defer s.lmtx.Unlock()
	return len(s.listeners)
}

func (s *session) interested(op proto.OpCode) [][]byte {
	s.lmtx.Lock()
	defer s.lmtx.Unlock()
	var ids [][]byte
	for _, lr := range s.listeners {
		if lr.Interests&eventInterest(op) != 0 {
			ids = append(ids, lr.ListenerID)
		}
	}
	return ids
}

func (s *session) notify(op proto.OpCode, key []byte, version int64) {
	for _, id := range s.interested(op) {
		s.writeEvent(&proto.Event{ListenerID: id, Op: op, Key: key, Version: version})
	}
}

func (s *session) notifyCustom(op proto.OpCode, payload []byte) {
	for _, id := range s.interested(op) {
		s.writeEvent(&proto.Event{ListenerID: id, Op: op, Custom: true, Payload: payload})
	}
}

func (s *session) writeEvent(e *proto.Event) {
	c := proto.NewByteCursorWithSize(64)
	proto.WriteResponseHeader(c, &proto.ResponseHeader{Op: e.Op, Status: proto.OpStatusSuccess}, proto.IntelligenceBasic)
	proto.WriteEvent(c, e)
	s.write(c.Bytes())
}

// write sends one frame. Frames from different goroutines never
// interleave.
func (s *session) write(b []byte) {
	s.wmtx.Lock()
	defer s.wmtx.Unlock()
	if !s.srv.cfg.FragmentWrites {
		s.conn.Write(b)
		return
	}
	const chunk = 3
	for len(b) > 0 {
		n := chunk
		if n > len(b) {
			n = len(b)
		}
		if _, err := s.conn.Write(b[:n]); err != nil {
			return
		}
		b = b[n:]
		time.Sleep(s.srv.cfg.FragmentDelay)
	}
}
