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
	"net"
	"sync"

	"github.com/golang/glog"

	"hotrod/pkg/proto"
)

// Server is an in-process Hot Rod server backed by a Store. It speaks the
// same codec as the client and is only meant for tests.
type Server struct {
	cfg   Config
	ln    net.Listener
	store *Store

	mtx      sync.Mutex
	sessions map[*session]struct{}
	mocks    []*MockInfo
	topology *proto.TopologyUpdate
	counts   map[proto.OpCode]int
	closed   bool
	wg       sync.WaitGroup
}

// NewServer listens on a loopback port and serves until Close.
func NewServer(cfg Config) (*Server, error) {
	return NewServerAt(cfg, "127.0.0.1:0")
}

// NewServerAt listens on address, for example to bring back a server that
// clients already know.
func NewServerAt(cfg Config, address string) (*Server, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	s := NewUnstartedServer(cfg)
	s.ln = ln
	s.wg.Add(1)
	go s.accept()
	return s, nil
}

// NewUnstartedServer returns a server without a listener, for use with
// Serve over a net.Pipe.
func NewUnstartedServer(cfg Config) *Server {
	if cfg.ServerVersion == 0 {
		cfg.ServerVersion = DefaultConfig.ServerVersion
	}
	if cfg.FragmentDelay == 0 {
		cfg.FragmentDelay = DefaultConfig.FragmentDelay
	}
	store := cfg.Store
	if store == nil {
		store = NewStore()
	}
	return &Server{
		cfg:      cfg,
		store:    store,
		sessions: make(map[*session]struct{}),
		topology: cfg.Topology,
		counts:   make(map[proto.OpCode]int),
	}
}

func (s *Server) accept() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Serve(conn)
		}()
	}
}

// Serve runs one client session on conn until it is closed.
func (s *Server) Serve(conn net.Conn) {
	sess := newSession(s, conn)
	s.mtx.Lock()
	if s.closed {
		s.mtx.Unlock()
		conn.Close()
		return
	}
	s.sessions[sess] = struct{}{}
	s.mtx.Unlock()

	sess.run()

	s.mtx.Lock()
	delete(s.sessions, sess)
	s.mtx.Unlock()
}

func (s *Server) Addr() proto.ServerAddress {
	a := s.ln.Addr().(*net.TCPAddr)
	return proto.ServerAddress{Host: a.IP.String(), Port: uint16(a.Port)}
}

func (s *Server) Address() string {
	return s.Addr().String()
}

func (s *Server) Store() *Store {
	return s.store
}

func (s *Server) Close() {
	s.mtx.Lock()
	s.closed = true
	s.mtx.Unlock()
	if s.ln != nil {
		s.ln.Close()
	}
	s.DisconnectAll()
	s.wg.Wait()
}

// DisconnectAll closes every open session.
func (s *Server) DisconnectAll() {
	for _, sess := range s.sessionList() {
		sess.conn.Close()
	}
}

func (s *Server) sessionList() []*session {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	list := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		list = append(list, sess)
	}
	return list
}

func (s *Server) SetTopology(t *proto.TopologyUpdate) {
	s.mtx.Lock()
	s.topology = t
	s.mtx.Unlock()
}

func (s *Server) currentTopology() *proto.TopologyUpdate {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.topology
}

func (s *Server) SetMockParams(p *MockParams) {
	s.mtx.Lock()
	s.mocks = append(s.mocks, p.MockInfoList...)
	s.mtx.Unlock()
}

func (s *Server) Mock(m *MockInfo) {
	s.SetMockParams(NewMockParams(m))
}

func (s *Server) ClearMocks() {
	s.mtx.Lock()
	s.mocks = nil
	s.mtx.Unlock()
}

// takeMock returns the first override matching op and consumes one use of
// it.
func (s *Server) takeMock(op proto.OpCode) *MockInfo {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.counts[op]++
	for i, m := range s.mocks {
		if !m.matches(op) {
			continue
		}
		if m.Times > 0 {
			m.Times--
			if m.Times == 0 {
				s.mocks = append(s.mocks[:i:i], s.mocks[i+1:]...)
			}
		}
		return m
	}
	return nil
}

// Count returns how many requests with opcode op were received.
func (s *Server) Count(op proto.OpCode) int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.counts[op]
}

// Listeners returns the number of listeners registered over all sessions.
func (s *Server) Listeners() int {
	n := 0
	for _, sess := range s.sessionList() {
		n += sess.listenerCount()
	}
	return n
}

// Emit sends an event of kind op for key to every matching listener.
func (s *Server) Emit(op proto.OpCode, key []byte, version int64) {
	for _, sess := range s.sessionList() {
		sess.notify(op, key, version)
	}
}

// EmitCustom sends a custom event carrying payload to every listener.
func (s *Server) EmitCustom(op proto.OpCode, payload []byte) {
	for _, sess := range s.sessionList() {
		sess.notifyCustom(op, payload)
	}
}

// EmitToListener sends an event addressed to an arbitrary listener id.
func (s *Server) EmitToListener(listenerID []byte, op proto.OpCode, key []byte, version int64) {
	e := &proto.Event{ListenerID: listenerID, Op: op, Key: key, Version: version}
	for _, sess := range s.sessionList() {
		sess.writeEvent(e)
	}
}

// SendRaw writes b as is to every session.
func (s *Server) SendRaw(b []byte) {
	for _, sess := range s.sessionList() {
		sess.write(b)
	}
}

func (s *Server) logf(format string, args ...interface{}) {
	if glog.V(2) {
		glog.Infof("mock: "+format, args...)
	}
}
