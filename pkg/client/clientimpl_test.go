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
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"hotrod/pkg/proto"
	"hotrod/test/testutil/mock"
)

func newMockServer(t *testing.T, cfg mock.Config) *mock.Server {
	t.Helper()
	srv, err := mock.NewServer(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(servers ...string) Config {
	return Config{
		Servers:        servers,
		ConnectTimeout: Duration{Duration: time.Second},
		RequestTimeout: Duration{Duration: 2 * time.Second},
	}
}

func newTestClient(t *testing.T, conf Config) *clientImpl {
	t.Helper()
	c, err := newClient(conf)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c
}

// deadAddress returns an address nothing listens on.
func deadAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

func TestPutGetRemove(t *testing.T) {
	srv := newMockServer(t, mock.DefaultConfig)
	c := newTestClient(t, testConfig(srv.Address()))
	ctx := context.Background()

	r, err := c.Put(ctx, "k", "v")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Executed || r.Previous != nil {
		t.Errorf("put result %+v", r)
	}
	v, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if v != "v" {
		t.Errorf("get = %v, want v", v)
	}
	if r, err = c.Remove(ctx, "k"); err != nil || !r.Executed {
		t.Fatalf("remove = %+v, %v", r, err)
	}
	if v, err = c.Get(ctx, "k"); err != nil || v != nil {
		t.Errorf("get after remove = %v, %v", v, err)
	}
	if r, err = c.Remove(ctx, "k"); err != nil || r.Executed || r.Status != proto.OpStatusNotFound {
		t.Errorf("second remove = %+v, %v", r, err)
	}
}

func TestConditionalWrites(t *testing.T) {
	srv := newMockServer(t, mock.DefaultConfig)
	c := newTestClient(t, testConfig(srv.Address()))
	ctx := context.Background()

	if r, err := c.Replace(ctx, "k", "v0"); err != nil || r.Executed {
		t.Fatalf("replace of missing key = %+v, %v", r, err)
	}
	if r, err := c.PutIfAbsent(ctx, "k", "v1"); err != nil || !r.Executed {
		t.Fatalf("putIfAbsent = %+v, %v", r, err)
	}
	r, err := c.PutIfAbsent(ctx, "k", "v2", WithPrevious())
	if err != nil {
		t.Fatal(err)
	}
	if r.Executed || r.Previous != "v1" || r.Status != proto.OpStatusNotExecutedWithPrevious {
		t.Errorf("putIfAbsent over existing = %+v", r)
	}
	if r, err = c.Put(ctx, "k", "v3", WithPrevious()); err != nil || r.Previous != "v1" {
		t.Errorf("put with previous = %+v, %v", r, err)
	}

	e, err := c.GetWithMetadata(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	stale := e.Metadata.Version - 1
	if r, err = c.ReplaceWithVersion(ctx, "k", "v4", stale); err != nil || r.Executed {
		t.Errorf("replace with stale version = %+v, %v", r, err)
	}
	if r, err = c.ReplaceWithVersion(ctx, "k", "v4", e.Metadata.Version); err != nil || !r.Executed {
		t.Fatalf("replace with version = %+v, %v", r, err)
	}
	if r, err = c.RemoveWithVersion(ctx, "k", e.Metadata.Version); err != nil || r.Executed {
		t.Errorf("remove with old version = %+v, %v", r, err)
	}
	if e, err = c.GetWithMetadata(ctx, "k"); err != nil || e.Value != "v4" {
		t.Fatalf("getWithMetadata = %+v, %v", e, err)
	}
	if r, err = c.RemoveWithVersion(ctx, "k", e.Metadata.Version, WithPrevious()); err != nil || !r.Executed || r.Previous != "v4" {
		t.Errorf("remove with version = %+v, %v", r, err)
	}
	if e, err = c.GetWithMetadata(ctx, "k"); err != nil || e != nil {
		t.Errorf("getWithMetadata after remove = %+v, %v", e, err)
	}
}

func TestExpiryMetadata(t *testing.T) {
	srv := newMockServer(t, mock.DefaultConfig)
	c := newTestClient(t, testConfig(srv.Address()))
	ctx := context.Background()

	if _, err := c.Put(ctx, "mortal", "v", WithLifespan(10*time.Second), WithMaxIdle(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Put(ctx, "immortal", "v"); err != nil {
		t.Fatal(err)
	}
	e, err := c.GetWithMetadata(ctx, "mortal")
	if err != nil {
		t.Fatal(err)
	}
	if e.Metadata.Lifespan != 10 || e.Metadata.MaxIdle != 60 || e.Metadata.IsImmortal() {
		t.Errorf("mortal metadata %+v", e.Metadata)
	}
	if e, err = c.GetWithMetadata(ctx, "immortal"); err != nil || !e.Metadata.IsImmortal() {
		t.Errorf("immortal metadata %+v, %v", e, err)
	}
}

func TestBulkAndCacheOps(t *testing.T) {
	srv := newMockServer(t, mock.DefaultConfig)
	c := newTestClient(t, testConfig(srv.Address()))
	ctx := context.Background()

	err := c.PutAll(ctx, []*Entry{
		{Key: "a", Value: "1"},
		{Key: "b", Value: "2"},
		{Key: "c", Value: "3"},
	})
	if err != nil {
		t.Fatal(err)
	}
	entries, err := c.GetAll(ctx, []interface{}{"a", "c", "missing"})
	if err != nil {
		t.Fatal(err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key.(string) < entries[j].Key.(string) })
	want := []*Entry{{Key: "a", Value: "1"}, {Key: "c", Value: "3"}}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("getAll (-want +got):\n%s", diff)
	}

	found, err := c.ContainsKey(ctx, "b")
	if err != nil || !found {
		t.Errorf("containsKey b = %v, %v", found, err)
	}
	if found, err = c.ContainsKey(ctx, "z"); err != nil || found {
		t.Errorf("containsKey z = %v, %v", found, err)
	}
	n, err := c.Size(ctx)
	if err != nil || n != 3 {
		t.Errorf("size = %d, %v", n, err)
	}
	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats["currentNumberOfEntries"] != "3" {
		t.Errorf("stats %v", stats)
	}
	if err = c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if n, err = c.Size(ctx); err != nil || n != 0 {
		t.Errorf("size after clear = %d, %v", n, err)
	}
}

func TestPing(t *testing.T) {
	srv := newMockServer(t, mock.DefaultConfig)
	c := newTestClient(t, testConfig(srv.Address()))

	resp, err := c.Ping(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if resp.ServerVersion != proto.Version30 || len(resp.Ops) == 0 {
		t.Errorf("ping response %+v", resp)
	}
	if resp.KeyMediaType == nil || resp.KeyMediaType.Name != proto.MediaTypeTextPlain {
		t.Errorf("key media type %v", resp.KeyMediaType)
	}
}

func TestJSONValues(t *testing.T) {
	srv := newMockServer(t, mock.DefaultConfig)
	conf := testConfig(srv.Address())
	conf.ValueMediaType = proto.MediaTypeJSON
	c := newTestClient(t, conf)
	ctx := context.Background()

	if _, err := c.Put(ctx, "book", map[string]interface{}{"title": "Dune", "year": 1965}); err != nil {
		t.Fatal(err)
	}
	v, err := c.Get(ctx, "book")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{"title": "Dune", "year": float64(1965)}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Errorf("json value (-want +got):\n%s", diff)
	}
	raw, _ := srv.Store().Get([]byte("book"))
	if string(raw) != `{"title":"Dune","year":1965}` {
		t.Errorf("stored %s", raw)
	}
}

func TestServerErrorNotRetried(t *testing.T) {
	srv := newMockServer(t, mock.DefaultConfig)
	c := newTestClient(t, testConfig(srv.Address()))
	ctx := context.Background()
	if _, err := c.Ping(ctx); err != nil {
		t.Fatal(err)
	}

	srv.Mock(&mock.MockInfo{Opcode: proto.OpCodeGet, Error: "boom", Times: 1})
	_, err := c.Get(ctx, "k", WithRetry())
	if !IsServerError(err) {
		t.Fatalf("want server error, got %v", err)
	}
	if IsRetryable(err) {
		t.Errorf("server error reported retryable")
	}
	if n := srv.Count(proto.OpCodeGet); n != 1 {
		t.Errorf("get sent %d times", n)
	}
}

func TestRetryOnTransportError(t *testing.T) {
	srv := newMockServer(t, mock.DefaultConfig)
	reg := prometheus.NewRegistry()
	conf := testConfig(deadAddress(t), srv.Address())
	conf.MaxRetries = 2
	conf.Registerer = reg
	c := newTestClient(t, conf)
	ctx := context.Background()

	// the first round robin pick is the dead seed
	if _, err := c.Put(ctx, "k", "v", WithRetry()); err != nil {
		t.Fatalf("put with retry: %s", err)
	}
	if n := counterValue(t, reg, "hotrod_retries_total"); n != 1 {
		t.Errorf("retries_total = %v", n)
	}

	_, err := c.Get(ctx, "k")
	if !IsRetryable(err) {
		t.Errorf("get without retry on dead seed: want transport error, got %v", err)
	}
	if n := counterValue(t, reg, "hotrod_connection_events_total"); n < 2 {
		t.Errorf("connection events %v", n)
	}
}

func TestFailoverToNextCluster(t *testing.T) {
	backup := newMockServer(t, mock.DefaultConfig)
	reg := prometheus.NewRegistry()
	conf := testConfig(deadAddress(t))
	conf.Clusters = []ClusterConfig{{Name: "backup", Servers: []string{backup.Address()}}}
	conf.MaxRetries = 1
	conf.Registerer = reg
	c := newTestClient(t, conf)
	ctx := context.Background()

	// the failing call is not sent again, but the client moves on
	if _, err := c.Put(ctx, "k", "v"); !IsRetryable(err) {
		t.Fatalf("put on dead cluster: want transport error, got %v", err)
	}
	if got := c.ActiveCluster(); got != "backup" {
		t.Fatalf("active cluster %s, want backup", got)
	}
	if _, ok := backup.Store().Get([]byte("k")); ok {
		t.Errorf("failed put was sent to the backup cluster")
	}
	if _, err := c.Put(ctx, "k", "v"); err != nil {
		t.Fatalf("put after failover: %s", err)
	}
	if _, ok := backup.Store().Get([]byte("k")); !ok {
		t.Errorf("entry not written to backup cluster")
	}
	if n := counterValue(t, reg, "hotrod_site_failovers_total"); n != 1 {
		t.Errorf("site_failovers_total = %v", n)
	}
}

func TestFailoverWithRetryResends(t *testing.T) {
	backup := newMockServer(t, mock.DefaultConfig)
	conf := testConfig(deadAddress(t))
	conf.Clusters = []ClusterConfig{{Name: "backup", Servers: []string{backup.Address()}}}
	conf.MaxRetries = 1
	c := newTestClient(t, conf)

	if _, err := c.Put(context.Background(), "k", "v", WithRetry()); err != nil {
		t.Fatalf("put with retry: %s", err)
	}
	if _, ok := backup.Store().Get([]byte("k")); !ok {
		t.Errorf("entry not written to backup cluster")
	}
}

func TestFailbackToDefault(t *testing.T) {
	backup := newMockServer(t, mock.DefaultConfig)
	primary := deadAddress(t)
	conf := testConfig(primary)
	conf.Clusters = []ClusterConfig{{Name: "backup", Servers: []string{backup.Address()}}}
	conf.FailbackInterval = Duration{Duration: 20 * time.Millisecond}
	c := newTestClient(t, conf)
	ctx := context.Background()

	if _, err := c.Ping(ctx, WithRetry()); err != nil {
		t.Fatal(err)
	}
	if got := c.ActiveCluster(); got != "backup" {
		t.Fatalf("active cluster %s, want backup", got)
	}
	// no default server answers, so the client stays on backup
	time.Sleep(100 * time.Millisecond)
	if got := c.ActiveCluster(); got != "backup" {
		t.Fatalf("failed back to an unreachable cluster: %s", got)
	}

	srv, err := mock.NewServerAt(mock.DefaultConfig, primary)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Close)
	deadline := time.Now().Add(2 * time.Second)
	for c.ActiveCluster() != "default" {
		if time.Now().After(deadline) {
			t.Fatal("client did not fail back to the default cluster")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := c.Put(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}
	if _, ok := srv.Store().Get([]byte("k")); !ok {
		t.Error("entry not written to the default cluster")
	}
	if n := c.pool.size(); n != 1 {
		t.Errorf("%d connections after fail back", n)
	}
}

func TestUnreachableMemberKeepsCluster(t *testing.T) {
	live := newMockServer(t, mock.DefaultConfig)
	backup := newMockServer(t, mock.DefaultConfig)
	conf := testConfig(deadAddress(t), live.Address())
	conf.Clusters = []ClusterConfig{{Name: "backup", Servers: []string{backup.Address()}}}
	c := newTestClient(t, conf)
	ctx := context.Background()

	// round robin alternates, so half of the calls hit the dead seed
	var failures int
	for i := 0; i < 4; i++ {
		if _, err := c.Ping(ctx); err != nil {
			failures++
		}
	}
	if failures != 2 {
		t.Errorf("%d of 4 pings failed", failures)
	}
	if got := c.ActiveCluster(); got != "default" {
		t.Errorf("failed over with a reachable member: %s", got)
	}
}

func TestSwitchCluster(t *testing.T) {
	east := newMockServer(t, mock.DefaultConfig)
	west := newMockServer(t, mock.DefaultConfig)
	conf := testConfig(east.Address())
	conf.Clusters = []ClusterConfig{{Name: "west", Servers: []string{west.Address()}}}
	c := newTestClient(t, conf)
	ctx := context.Background()

	if _, err := c.Put(ctx, "k1", "v"); err != nil {
		t.Fatal(err)
	}
	if err := c.SwitchToCluster("west"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Put(ctx, "k2", "v"); err != nil {
		t.Fatal(err)
	}
	if n := c.pool.size(); n != 1 {
		t.Errorf("%d connections after switching, want only west", n)
	}
	if err := c.SwitchToCluster("north"); !IsConfigError(err) {
		t.Errorf("switch to unknown cluster: %v", err)
	}
	if c.ActiveCluster() != "west" {
		t.Errorf("active cluster %s", c.ActiveCluster())
	}
	c.SwitchToDefaultCluster()
	if _, err := c.Put(ctx, "k3", "v"); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		srv  *mock.Server
		keys []string
	}{
		{east, []string{"k1", "k3"}},
		{west, []string{"k2"}},
	} {
		if n := tc.srv.Store().Len(); n != len(tc.keys) {
			t.Errorf("%s holds %d entries, want %v", tc.srv.Address(), n, tc.keys)
		}
		for _, k := range tc.keys {
			if _, ok := tc.srv.Store().Get([]byte(k)); !ok {
				t.Errorf("%s missing %s", tc.srv.Address(), k)
			}
		}
	}
}

func TestHashAwareRouting(t *testing.T) {
	servers := []*mock.Server{newMockServer(t, mock.DefaultConfig), newMockServer(t, mock.DefaultConfig)}
	topo := &proto.TopologyUpdate{
		ID:           7,
		Servers:      []proto.ServerAddress{servers[0].Addr(), servers[1].Addr()},
		HashFunction: 3,
	}
	for i := 0; i < 16; i++ {
		topo.Segments = append(topo.Segments, []int{i % 2, (i + 1) % 2})
	}
	for _, srv := range servers {
		srv.SetTopology(topo)
	}
	c := newTestClient(t, testConfig(servers[0].Address()))
	ctx := context.Background()

	if _, err := c.Ping(ctx); err != nil {
		t.Fatal(err)
	}
	if id := c.router.TopologyID(); id != 7 {
		t.Fatalf("topology id %d, want 7", id)
	}
	if got := c.router.Members(); len(got) != 2 {
		t.Fatalf("members %v", got)
	}

	byAddr := map[proto.ServerAddress]*mock.Server{servers[0].Addr(): servers[0], servers[1].Addr(): servers[1]}
	for i := 0; i < 20; i++ {
		key := string(rune('a' + i))
		if _, err := c.Put(ctx, key, "v"); err != nil {
			t.Fatal(err)
		}
		owner, ok := c.router.Primary([]byte(key))
		if !ok {
			t.Fatalf("no owner for %s", key)
		}
		if _, found := byAddr[owner].Store().Get([]byte(key)); !found {
			t.Errorf("key %s not written to its primary owner %s", key, owner)
		}
	}
	if n := c.pool.size(); n != 2 {
		t.Errorf("%d connections, want one per member", n)
	}
}

func TestClosedClient(t *testing.T) {
	srv := newMockServer(t, mock.DefaultConfig)
	c := newTestClient(t, testConfig(srv.Address()))
	c.Close()
	c.Close()
	if _, err := c.Get(context.Background(), "k"); err != ErrClosed {
		t.Errorf("get on closed client: %v", err)
	}
	if _, err := c.Iterator(context.Background(), 10, IteratorOptions{}); err != ErrClosed {
		t.Errorf("iterator on closed client: %v", err)
	}
}

func TestConnect(t *testing.T) {
	srv := newMockServer(t, mock.DefaultConfig)
	c, err := Connect(context.Background(), testConfig(srv.Address()))
	if err != nil {
		t.Fatal(err)
	}
	c.Close()

	conf := testConfig(deadAddress(t))
	conf.MaxRetries = 1
	if _, err = Connect(context.Background(), conf); !IsRetryable(err) {
		t.Errorf("connect to dead server: %v", err)
	}
}

type spanRecorder struct {
	noop.TracerProvider
	mtx   sync.Mutex
	names []string
}

func (r *spanRecorder) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return recordingTracer{r: r}
}

func (r *spanRecorder) add(name string) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.names = append(r.names, name)
}

type recordingTracer struct {
	noop.Tracer
	r *spanRecorder
}

func (t recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	t.r.add(name)
	return t.Tracer.Start(ctx, name, opts...)
}

func TestOperationSpans(t *testing.T) {
	srv := newMockServer(t, mock.DefaultConfig)
	rec := &spanRecorder{}
	conf := testConfig(srv.Address())
	conf.TracerProvider = rec
	c := newTestClient(t, conf)
	ctx := context.Background()

	if _, err := c.Put(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"hotrod.Put", "hotrod.Get"}, rec.names); diff != "" {
		t.Errorf("spans (-want +got):\n%s", diff)
	}
}
