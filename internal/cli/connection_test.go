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
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hotrod/pkg/errors"
	"hotrod/pkg/proto"
	"hotrod/test/testutil/mock"
)

type testEnv struct {
	t    *testing.T
	srv  *mock.Server
	conn *Connection
	p    *proto.Protocol
}

func newTestEnv(t *testing.T, cfg mock.Config, opts Options) *testEnv {
	t.Helper()
	srv, err := mock.NewServer(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Close)
	opts.Protocol = testProtocol
	conn, err := Dial(context.Background(), srv.Addr(), opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	env := &testEnv{t: t, srv: srv, conn: conn, p: testProtocol}
	// one round trip so the server has registered the session
	if _, err := env.ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	return env
}

func (e *testEnv) header(op proto.OpCode) *proto.RequestHeader {
	return &proto.RequestHeader{MessageID: e.conn.NextMessageID(), Op: op}
}

func (e *testEnv) ping(ctx context.Context) (interface{}, error) {
	h := e.header(proto.OpCodePing)
	return e.conn.Send(ctx, h.MessageID, e.p.EncodeEmpty(h), e.p.PingDecoder())
}

func (e *testEnv) put(key, value string) {
	e.t.Helper()
	h := e.header(proto.OpCodePut)
	payload, err := e.p.EncodePut(h, []byte(key), []byte(value), nil)
	if err != nil {
		e.t.Fatal(err)
	}
	if _, err = e.conn.Send(context.Background(), h.MessageID, payload, proto.DecodeWriteResult); err != nil {
		e.t.Fatalf("put %s: %s", key, err)
	}
}

func (e *testEnv) get(ctx context.Context, key string) ([]byte, error) {
	h := e.header(proto.OpCodeGet)
	v, err := e.conn.Send(ctx, h.MessageID, e.p.EncodeKeyRequest(h, []byte(key), nil), proto.DecodeValue)
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (e *testEnv) contains(ctx context.Context, key string) (bool, error) {
	h := e.header(proto.OpCodeContainsKey)
	v, err := e.conn.Send(ctx, h.MessageID, e.p.EncodeKeyRequest(h, []byte(key), nil), proto.DecodeContains)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (e *testEnv) addListener(reg *Registration, includeState bool) error {
	return e.addListenerCtx(context.Background(), reg, includeState)
}

func (e *testEnv) addListenerCtx(ctx context.Context, reg *Registration, includeState bool) error {
	h := e.header(proto.OpCodeAddClientListener)
	payload := e.p.EncodeAddListener(h, &proto.AddListenerRequest{ListenerID: reg.ID(), IncludeState: includeState})
	undo := func() (uint64, []byte) {
		h := e.header(proto.OpCodeRemoveClientListener)
		return h.MessageID, e.p.EncodeRemoveListener(h, reg.ID())
	}
	_, err := e.conn.AddListener(ctx, h.MessageID, reg, payload, proto.DecodeNone, undo)
	return err
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnectionPutGet(t *testing.T) {
	for _, fragment := range []bool{false, true} {
		cfg := mock.DefaultConfig
		cfg.FragmentWrites = fragment
		env := newTestEnv(t, cfg, Options{})
		env.put("k1", "v1")
		v, err := env.get(context.Background(), "k1")
		if err != nil {
			t.Fatal(err)
		}
		if string(v) != "v1" {
			t.Errorf("fragmented=%v: got %q", fragment, v)
		}
		v, err = env.get(context.Background(), "missing")
		if err != nil || v != nil {
			t.Errorf("missing key: %q %v", v, err)
		}
	}
}

func TestConnectionOutOfOrderResponses(t *testing.T) {
	env := newTestEnv(t, mock.DefaultConfig, Options{})
	env.put("slow", "1")
	env.put("fast", "2")
	env.srv.Mock(&mock.MockInfo{Opcode: proto.OpCodeGet, Delay: 100 * time.Millisecond, Times: 1})

	var mtx sync.Mutex
	var order []string
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := env.get(context.Background(), "slow")
		if err != nil || string(v) != "1" {
			t.Errorf("slow get: %q %v", v, err)
		}
		mtx.Lock()
		order = append(order, "slow")
		mtx.Unlock()
	}()
	waitFor(t, "slow get in flight", func() bool { return env.conn.PendingCount() == 1 })
	ok, err := env.contains(context.Background(), "fast")
	if err != nil || !ok {
		t.Errorf("contains: %v %v", ok, err)
	}
	mtx.Lock()
	order = append(order, "fast")
	mtx.Unlock()
	wg.Wait()

	if len(order) != 2 || order[0] != "fast" {
		t.Errorf("completion order %v", order)
	}
}

func TestConnectionConcurrentSenders(t *testing.T) {
	env := newTestEnv(t, mock.DefaultConfig, Options{})
	env.put("k", "v")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if v, err := env.get(context.Background(), "k"); err != nil || string(v) != "v" {
					t.Errorf("get: %q %v", v, err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if n := env.srv.Count(proto.OpCodeGet); n != 200 {
		t.Errorf("server saw %d gets", n)
	}
}

func TestConnectionTimeoutThenLateResponse(t *testing.T) {
	env := newTestEnv(t, mock.DefaultConfig, Options{RequestTimeout: 50 * time.Millisecond})
	env.put("k", "v")
	env.srv.Mock(&mock.MockInfo{Opcode: proto.OpCodeGet, Delay: 200 * time.Millisecond, Times: 1})

	_, err := env.get(context.Background(), "k")
	if !errors.IsKind(err, errors.KindTransport) {
		t.Fatalf("expected timeout, got %v", err)
	}
	// the late frame arrives and must be skipped without breaking the stream
	time.Sleep(250 * time.Millisecond)
	v, err := env.get(context.Background(), "k")
	if err != nil || string(v) != "v" {
		t.Fatalf("after late response: %q %v", v, err)
	}
	if env.conn.IsClosed() {
		t.Error("connection closed")
	}
}

func TestConnectionContextCanceled(t *testing.T) {
	env := newTestEnv(t, mock.DefaultConfig, Options{})
	env.srv.Mock(&mock.MockInfo{Opcode: proto.OpCodeGet, Delay: 100 * time.Millisecond, Times: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := env.get(ctx, "k"); !errors.IsKind(err, errors.KindTransport) {
		t.Fatalf("got %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	if _, err := env.get(context.Background(), "k"); err != nil {
		t.Fatal(err)
	}
}

func TestConnectionServerError(t *testing.T) {
	env := newTestEnv(t, mock.DefaultConfig, Options{})
	env.srv.Mock(&mock.MockInfo{Opcode: proto.OpCodeGet, Error: "boom", Times: 1})
	_, err := env.get(context.Background(), "k")
	if !errors.IsKind(err, errors.KindServer) {
		t.Fatalf("got %v", err)
	}
	if _, err = env.get(context.Background(), "k"); err != nil {
		t.Fatalf("connection unusable after server error: %v", err)
	}
}

func TestConnectionErrorStatus(t *testing.T) {
	env := newTestEnv(t, mock.DefaultConfig, Options{})
	env.srv.Mock(&mock.MockInfo{Opcode: proto.OpCodeGet, NoResponse: true, Times: 1})

	h := env.header(proto.OpCodeGet)
	chErr := make(chan error, 1)
	go func() {
		_, err := env.conn.Send(context.Background(), h.MessageID,
			env.p.EncodeKeyRequest(h, []byte("k"), nil), proto.DecodeValue)
		chErr <- err
	}()
	waitFor(t, "get in flight", func() bool { return env.conn.PendingCount() == 1 })

	// a get response whose status, not opcode, marks the error body
	c := proto.NewByteCursorWithSize(16)
	proto.WriteResponseHeader(c, &proto.ResponseHeader{MessageID: h.MessageID, Op: proto.OpCodeGetResp,
		Status: proto.OpStatusError}, proto.IntelligenceBasic)
	c.WriteString("boom")
	env.srv.SendRaw(c.Bytes())

	err := <-chErr
	if !errors.IsKind(err, errors.KindServer) || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("got %v", err)
	}
	if _, err = env.get(context.Background(), "k"); err != nil || env.conn.IsClosed() {
		t.Fatalf("connection unusable after error status: %v", err)
	}
}

func TestConnectionUnexpectedStatusKeepsConnection(t *testing.T) {
	env := newTestEnv(t, mock.DefaultConfig, Options{})
	env.put("k", "v")
	env.srv.Mock(&mock.MockInfo{Opcode: proto.OpCodeIterationNext, Status: proto.OpStatusNotFound, Times: 1})

	h := env.header(proto.OpCodeIterationNext)
	payload, err := env.p.EncodeIterationID(h, "gone")
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.conn.Send(context.Background(), h.MessageID, payload, env.p.IterationNextDecoder(false))
	if !errors.IsKind(err, errors.KindServer) {
		t.Fatalf("got %v", err)
	}
	if v, err := env.get(context.Background(), "k"); err != nil || string(v) != "v" {
		t.Fatalf("after status error: %q %v", v, err)
	}
	if env.conn.IsClosed() {
		t.Error("connection closed")
	}
}

func TestConnectionProtocolErrorTearsDown(t *testing.T) {
	var closedWith atomic.Value
	env := newTestEnv(t, mock.DefaultConfig, Options{
		OnClose: func(c *Connection, err error) { closedWith.Store(err) },
	})
	env.srv.Mock(&mock.MockInfo{Opcode: proto.OpCodeGet, NoResponse: true})

	chErr := make(chan error, 1)
	go func() {
		_, err := env.get(context.Background(), "k")
		chErr <- err
	}()
	waitFor(t, "get in flight", func() bool { return env.conn.PendingCount() == 1 })
	env.srv.SendRaw([]byte{0x42, 0x00})

	if err := <-chErr; !errors.IsKind(err, errors.KindProtocol) {
		t.Errorf("pending request: %v", err)
	}
	<-env.conn.Done()
	if !errors.IsKind(env.conn.Err(), errors.KindProtocol) {
		t.Errorf("connection error: %v", env.conn.Err())
	}
	waitFor(t, "close callback", func() bool { return closedWith.Load() != nil })
	if _, err := env.get(context.Background(), "k"); !errors.IsKind(err, errors.KindTransport) {
		t.Errorf("send after teardown: %v", err)
	}
}

func TestConnectionUnknownMessageID(t *testing.T) {
	env := newTestEnv(t, mock.DefaultConfig, Options{})
	c := proto.NewByteCursorWithSize(16)
	proto.WriteResponseHeader(c, &proto.ResponseHeader{MessageID: 9999, Op: proto.OpCodeGetResp}, proto.IntelligenceBasic)
	env.srv.SendRaw(c.Bytes())
	<-env.conn.Done()
	if !errors.IsKind(env.conn.Err(), errors.KindProtocol) {
		t.Errorf("connection error: %v", env.conn.Err())
	}
}

func TestConnectionCloseFailsPending(t *testing.T) {
	env := newTestEnv(t, mock.DefaultConfig, Options{})
	env.srv.Mock(&mock.MockInfo{Opcode: proto.OpCodeGet, NoResponse: true})

	const n = 3
	chErr := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := env.get(context.Background(), "k")
			chErr <- err
		}()
	}
	waitFor(t, "gets in flight", func() bool { return env.conn.PendingCount() == n })
	env.conn.Close()
	env.conn.Close()

	for i := 0; i < n; i++ {
		if err := <-chErr; err != ErrConnectionClosed {
			t.Errorf("pending request %d: %v", i, err)
		}
	}
	if env.conn.Err() != ErrConnectionClosed {
		t.Errorf("connection error: %v", env.conn.Err())
	}
}

func TestConnectionTopologyAfterFullFrame(t *testing.T) {
	srvTopology := &proto.TopologyUpdate{
		ID:           5,
		Servers:      []proto.ServerAddress{{Host: "127.0.0.1", Port: 11222}},
		HashFunction: 3,
		Segments:     [][]int{{0}, {0}},
	}
	cfg := mock.DefaultConfig
	cfg.FragmentWrites = true
	cfg.Topology = srvTopology

	var calls int32
	var got atomic.Value
	env := newTestEnv(t, cfg, Options{
		OnTopology: func(from proto.ServerAddress, u *proto.TopologyUpdate) {
			atomic.AddInt32(&calls, 1)
			got.Store(u)
		},
	})
	// the ping in newTestEnv already carried one topology
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("topology delivered %d times for one frame", n)
	}
	if u := got.Load().(*proto.TopologyUpdate); u.ID != 5 || len(u.Segments) != 2 {
		t.Errorf("topology %+v", u)
	}
	if _, err := env.get(context.Background(), "k"); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("topology delivered %d times for two frames", n)
	}
}

func TestConnectionListener(t *testing.T) {
	env := newTestEnv(t, mock.DefaultConfig, Options{})
	chEvent := make(chan *proto.Event, 4)
	reg := NewRegistration(NewListenerID()).
		On(proto.EventCreated, func(e *proto.Event) { chEvent <- e }).
		On(proto.EventRemoved, func(e *proto.Event) { chEvent <- e })
	if err := env.addListener(reg, false); err != nil {
		t.Fatal(err)
	}
	if !env.conn.HasListener(reg.ID()) {
		t.Fatal("listener not registered")
	}

	env.put("k", "v")
	select {
	case e := <-chEvent:
		if e.Type != proto.EventCreated || string(e.Key) != "k" || e.Version == 0 {
			t.Errorf("event %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no created event")
	}

	// unknown listener ids are dropped without affecting the connection
	env.srv.EmitToListener(NewListenerID(), proto.OpCodeCacheEntryCreated, []byte("x"), 1)
	if _, err := env.ping(context.Background()); err != nil {
		t.Fatal(err)
	}

	h := env.header(proto.OpCodeRemoveClientListener)
	if _, err := env.conn.RemoveListener(context.Background(), h.MessageID, reg.ID(),
		env.p.EncodeRemoveListener(h, reg.ID()), proto.DecodeNone); err != nil {
		t.Fatal(err)
	}
	if env.conn.HasListener(reg.ID()) {
		t.Error("listener still registered")
	}
	if n := env.srv.Listeners(); n != 0 {
		t.Errorf("server has %d listeners", n)
	}
}

func TestConnectionListenerIncludeState(t *testing.T) {
	env := newTestEnv(t, mock.DefaultConfig, Options{})
	for _, k := range []string{"a", "b", "c"} {
		env.put(k, "v")
	}
	var created []string
	reg := NewRegistration(NewListenerID()).On(proto.EventCreated, func(e *proto.Event) {
		created = append(created, string(e.Key))
	})
	if err := env.addListener(reg, true); err != nil {
		t.Fatal(err)
	}
	// state events precede the response and run on the loop before it
	if len(created) != 3 {
		t.Errorf("created events %v", created)
	}
}

func TestConnectionListenerRollback(t *testing.T) {
	env := newTestEnv(t, mock.DefaultConfig, Options{})
	env.srv.Mock(&mock.MockInfo{Opcode: proto.OpCodeAddClientListener, Error: "rejected", Times: 1})
	reg := NewRegistration(NewListenerID())
	if err := env.addListener(reg, false); !errors.IsKind(err, errors.KindServer) {
		t.Fatalf("got %v", err)
	}
	if env.conn.HasListener(reg.ID()) {
		t.Error("failed registration kept")
	}
}

func TestConnectionListenerRollbackKeepsEarlierHandlers(t *testing.T) {
	env := newTestEnv(t, mock.DefaultConfig, Options{})
	id := NewListenerID()
	chEvent := make(chan string, 4)
	first := NewRegistration(id).On(proto.EventCreated, func(e *proto.Event) { chEvent <- "first" })
	if err := env.addListener(first, false); err != nil {
		t.Fatal(err)
	}
	env.srv.Mock(&mock.MockInfo{Opcode: proto.OpCodeAddClientListener, Error: "rejected", Times: 1})
	second := NewRegistration(id).On(proto.EventCreated, func(e *proto.Event) { chEvent <- "second" })
	if err := env.addListener(second, false); !errors.IsKind(err, errors.KindServer) {
		t.Fatalf("got %v", err)
	}
	if !env.conn.HasListener(id) {
		t.Fatal("earlier registration dropped")
	}
	env.put("k", "v")
	select {
	case got := <-chEvent:
		if got != "first" {
			t.Errorf("event delivered to %s registration", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no created event")
	}
	if _, err := env.ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(chEvent); n != 0 {
		t.Errorf("%d extra events", n)
	}
}

func TestConnectionListenerAbandoned(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		timeout time.Duration
	}{
		{"caller gives up", Options{}, 20 * time.Millisecond},
		{"request timeout", Options{RequestTimeout: 50 * time.Millisecond}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, mock.DefaultConfig, tc.opts)
			env.srv.Mock(&mock.MockInfo{Opcode: proto.OpCodeAddClientListener, Delay: 200 * time.Millisecond, Times: 1})
			ctx := context.Background()
			if tc.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, tc.timeout)
				defer cancel()
			}
			reg := NewRegistration(NewListenerID())
			if err := env.addListenerCtx(ctx, reg, false); !errors.IsKind(err, errors.KindTransport) {
				t.Fatalf("got %v", err)
			}
			waitFor(t, "local registration dropped", func() bool { return !env.conn.HasListener(reg.ID()) })
			waitFor(t, "server listener removed", func() bool { return env.srv.Listeners() == 0 })

			// the late acknowledgement must not bring the registration back
			time.Sleep(250 * time.Millisecond)
			if env.conn.HasListener(reg.ID()) {
				t.Error("registration restored by late reply")
			}
			if _, err := env.ping(context.Background()); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestConnectionOverPipe(t *testing.T) {
	srv := mock.NewUnstartedServer(mock.DefaultConfig)
	client, server := net.Pipe()
	go srv.Serve(server)
	conn, err := NewConnection(client, proto.ServerAddress{Host: "pipe"}, Options{Protocol: testProtocol})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	h := &proto.RequestHeader{MessageID: conn.NextMessageID(), Op: proto.OpCodeSize}
	v, err := conn.Send(context.Background(), h.MessageID, testProtocol.EncodeEmpty(h), proto.DecodeSize)
	if err != nil {
		t.Fatal(err)
	}
	if v.(int64) != 0 {
		t.Errorf("size %v", v)
	}
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	a := ln.Addr().(*net.TCPAddr)
	ln.Close()
	_, err = Dial(context.Background(), proto.ServerAddress{Host: "127.0.0.1", Port: uint16(a.Port)}, Options{})
	if !errors.IsKind(err, errors.KindTransport) {
		t.Errorf("got %v", err)
	}
}
