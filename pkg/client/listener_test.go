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
	"testing"
	"time"

	"hotrod/pkg/errors"
	"hotrod/pkg/proto"
	"hotrod/test/testutil/mock"
)

func recvEvent(t *testing.T, ch <-chan *proto.Event) *proto.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
	return nil
}

func TestListenerLifecycle(t *testing.T) {
	srv := newMockServer(t, mock.DefaultConfig)
	c := newTestClient(t, testConfig(srv.Address()))
	ctx := context.Background()

	ch := make(chan *proto.Event, 16)
	forward := func(e *proto.Event) { ch <- e }
	l, err := c.AddListener(ctx, map[proto.EventType]EventHandler{
		proto.EventCreated:  forward,
		proto.EventModified: forward,
		proto.EventRemoved:  forward,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(l.ID()) != 16 {
		t.Errorf("listener id %x", l.ID())
	}

	steps := []struct {
		do   func() error
		typ  proto.EventType
		key  string
		vers bool
	}{
		{func() error { _, err := c.Put(ctx, "a", "1"); return err }, proto.EventCreated, "a", true},
		{func() error { _, err := c.Put(ctx, "a", "2"); return err }, proto.EventModified, "a", true},
		{func() error { _, err := c.Remove(ctx, "a"); return err }, proto.EventRemoved, "a", false},
	}
	for _, step := range steps {
		if err = step.do(); err != nil {
			t.Fatal(err)
		}
		e := recvEvent(t, ch)
		if e.Type != step.typ || string(e.Key) != step.key || string(e.ListenerID) != string(l.ID()) {
			t.Errorf("event %s %q, want %s %q", e.Type, e.Key, step.typ, step.key)
		}
		if step.vers && e.Version == 0 {
			t.Errorf("%s event without version", e.Type)
		}
	}

	if err = c.RemoveListener(ctx, l); err != nil {
		t.Fatal(err)
	}
	if n := srv.Listeners(); n != 0 {
		t.Errorf("server still has %d listeners", n)
	}
	if err = c.RemoveListener(ctx, l); err != nil {
		t.Errorf("second remove: %v", err)
	}
}

func TestListenerIncludeState(t *testing.T) {
	srv := newMockServer(t, mock.DefaultConfig)
	c := newTestClient(t, testConfig(srv.Address()))
	ctx := context.Background()
	for _, k := range []string{"x", "y", "z"} {
		if _, err := c.Put(ctx, k, "v"); err != nil {
			t.Fatal(err)
		}
	}

	var keys []string
	_, err := c.AddListener(ctx, map[proto.EventType]EventHandler{
		proto.EventCreated: func(e *proto.Event) { keys = append(keys, string(e.Key)) },
	}, WithIncludeState())
	if err != nil {
		t.Fatal(err)
	}
	// state events precede the registration response on the same connection
	if len(keys) != 3 {
		t.Errorf("include state delivered %v", keys)
	}
}

func TestListenerInterests(t *testing.T) {
	srv := newMockServer(t, mock.DefaultConfig)
	c := newTestClient(t, testConfig(srv.Address()))
	ctx := context.Background()
	id := []byte("0123456789abcdef")

	ch := make(chan *proto.Event, 16)
	l, err := c.AddListener(ctx, map[proto.EventType]EventHandler{
		proto.EventCreated: func(e *proto.Event) { ch <- e },
		proto.EventRemoved: func(e *proto.Event) { ch <- e },
	}, WithListenerID(id), WithInterests(proto.InterestRemoved))
	if err != nil {
		t.Fatal(err)
	}
	if string(l.ID()) != string(id) {
		t.Errorf("listener id %q", l.ID())
	}
	if _, err = c.Put(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}
	if _, err = c.Remove(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if e := recvEvent(t, ch); e.Type != proto.EventRemoved {
		t.Errorf("first event %s, want only removals", e.Type)
	}
}

func TestListenerCustomEvent(t *testing.T) {
	srv := newMockServer(t, mock.DefaultConfig)
	c := newTestClient(t, testConfig(srv.Address()))
	ctx := context.Background()

	ch := make(chan *proto.Event, 1)
	_, err := c.AddListener(ctx, map[proto.EventType]EventHandler{
		proto.EventCustom: func(e *proto.Event) { ch <- e },
	}, WithConverterFactory("key-value-with-previous-converter-factory"))
	if err != nil {
		t.Fatal(err)
	}
	srv.EmitCustom(proto.OpCodeCacheEntryModified,
		[]byte(`{"_type":"org.infinispan.KeyValueWithPrevious","key":"k","value":"new","prev":"old"}`))
	e := recvEvent(t, ch)
	if !e.Custom || e.DataKey != "k" || e.Value != "new" || e.Previous != "old" {
		t.Errorf("custom event %+v", e)
	}
}

func TestListenerConnectionLost(t *testing.T) {
	srv := newMockServer(t, mock.DefaultConfig)
	c := newTestClient(t, testConfig(srv.Address()))
	ctx := context.Background()

	l, err := c.AddListener(ctx, map[proto.EventType]EventHandler{
		proto.EventCreated: func(*proto.Event) {},
	})
	if err != nil {
		t.Fatal(err)
	}
	srv.DisconnectAll()
	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("listener connection did not report closing")
	}
	if err = c.RemoveListener(ctx, l); err != nil {
		t.Errorf("remove after connection loss: %v", err)
	}
}

func TestListenerServerError(t *testing.T) {
	srv := newMockServer(t, mock.DefaultConfig)
	c := newTestClient(t, testConfig(srv.Address()))
	ctx := context.Background()
	if _, err := c.Ping(ctx); err != nil {
		t.Fatal(err)
	}

	id := []byte("fedcba9876543210")
	srv.Mock(&mock.MockInfo{Opcode: proto.OpCodeAddClientListener, Error: "filter factory not found", Times: 1})
	_, err := c.AddListener(ctx, map[proto.EventType]EventHandler{
		proto.EventCreated: func(*proto.Event) {},
	}, WithListenerID(id), WithFilterFactory("missing"))
	if !errors.IsKind(err, errors.KindListener) {
		t.Fatalf("want listener error, got %v", err)
	}
	conn := c.pool.current(srv.Addr())
	if conn == nil {
		t.Fatal("no connection")
	}
	if conn.HasListener(id) {
		t.Errorf("failed registration left behind")
	}
}
