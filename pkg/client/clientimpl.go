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
	goerrors "errors"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"go.opentelemetry.io/otel/trace"

	"hotrod/internal/cli"
	"hotrod/pkg/cluster"
	"hotrod/pkg/errors"
	"hotrod/pkg/logging"
	"hotrod/pkg/proto"
	"hotrod/pkg/sasl"
	"hotrod/pkg/sec"
	"hotrod/pkg/stats"
)

type clientImpl struct {
	config   Config
	protocol *proto.Protocol
	router   *cluster.Router
	sites    *cluster.Sites
	registry *sasl.Registry
	pool     *connPool
	metrics  *stats.Metrics
	tracer   trace.Tracer
	closed   atomic.Bool
	chClose  chan struct{}

	// a fail back watcher is running
	watching atomic.Bool
}

// request is one operation as the retry loop sees it. key is the encoded
// routing key, nil for operations sent to any server.
type request struct {
	op      proto.OpCode
	key     []byte
	encode  func(h *proto.RequestHeader) ([]byte, error)
	decoder proto.Decoder
}

func New(conf Config) (IClient, error) {
	return newClient(conf)
}

// Connect creates a client and pings the cluster, failing when no server
// answers.
func Connect(ctx context.Context, conf Config) (IClient, error) {
	c, err := newClient(conf)
	if err != nil {
		return nil, err
	}
	if _, err = c.Ping(ctx, WithRetry()); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func newClient(conf Config) (*clientImpl, error) {
	conf.SetDefault()
	if err := conf.validate(); err != nil {
		return nil, err
	}
	protocol, err := conf.protocol()
	if err != nil {
		return nil, err
	}
	seeds, err := cluster.ParseAddresses(conf.Servers)
	if err != nil {
		return nil, err
	}
	var others []cluster.Site
	for _, cl := range conf.Clusters {
		servers, err := cluster.ParseAddresses(cl.Servers)
		if err != nil {
			return nil, err
		}
		others = append(others, cluster.Site{Name: cl.Name, Servers: servers})
	}
	router := cluster.NewRouter(seeds)
	sites, err := cluster.NewSites(router, seeds, others)
	if err != nil {
		return nil, err
	}
	tlsConfig, err := sec.NewClientTLSConfig(&conf.TLS)
	if err != nil {
		return nil, err
	}

	c := &clientImpl{
		config:   conf,
		protocol: protocol,
		router:   router,
		sites:    sites,
		registry: sasl.NewRegistry(),
		metrics:  stats.NewMetrics(conf.Registerer),
		tracer:   newTracer(conf.TracerProvider),
		chClose:  make(chan struct{}),
	}
	c.pool = newConnPool(cli.Options{
		Protocol:       protocol,
		ConnectTimeout: conf.ConnectTimeout.Duration,
		RequestTimeout: conf.RequestTimeout.Duration,
		WriteTimeout:   conf.WriteTimeout.Duration,
		ReadBufferSize: conf.ReadBufferSize,
		TLSConfig:      tlsConfig,
		Metrics:        c.metrics,
		OnTopology:     c.onTopology,
	}, c.onConnect)

	glog.Infof("client servers=%v clusters=%v version=%s cache=%q intelligence=%s tls=%v auth=%v",
		conf.Servers, sites.Names(), protocol.Version(), conf.CacheName, conf.Intelligence,
		tlsConfig != nil, conf.Auth.Enabled)
	return c, nil
}

func (c *clientImpl) Close() {
	if c.closed.Swap(true) {
		return
	}
	close(c.chClose)
	c.pool.close()
	glog.Infof("client closed")
}

// onTopology runs on a connection processing loop, so pruning connections
// to departed members happens elsewhere.
func (c *clientImpl) onTopology(from proto.ServerAddress, u *proto.TopologyUpdate) {
	if !c.router.UpdateFrom(from, u) {
		return
	}
	c.metrics.TopologyInstalled(u.ID)
	if glog.V(2) {
		b := logging.NewKVBufferForLog()
		b.AddAddr(from).AddTopologyID(u.ID).AddInt([]byte("members"), len(u.Servers)).AddInt([]byte("segments"), len(u.Segments))
		glog.Infof("topology installed %s", b.String())
	}
	go c.pool.retain(c.router.Members())
}

func (c *clientImpl) newHeader(conn *cli.Connection, op proto.OpCode) *proto.RequestHeader {
	return &proto.RequestHeader{
		MessageID:  conn.NextMessageID(),
		Op:         op,
		TopologyID: c.router.TopologyID(),
	}
}

// route picks the primary owner of key, or the next member round robin for
// key-less requests and when the owner already failed this call.
func (c *clientImpl) route(key []byte, failed map[proto.ServerAddress]bool) (proto.ServerAddress, error) {
	if key != nil {
		if addr, ok := c.router.Primary(key); ok && !failed[addr] {
			return addr, nil
		}
	}
	members := c.router.Members()
	for i := 0; i < len(members); i++ {
		addr, ok := c.router.NextRoundRobin()
		if !ok {
			break
		}
		if !failed[addr] {
			return addr, nil
		}
	}
	if addr, ok := c.router.NextRoundRobin(); ok {
		return addr, nil
	}
	return proto.ServerAddress{}, ErrNoServers
}

func (c *clientImpl) send(ctx context.Context, addr proto.ServerAddress, req *request) (interface{}, error) {
	conn, err := c.pool.get(ctx, addr)
	if err != nil {
		if errors.IsRetryable(err) && ctx.Err() == nil {
			c.pool.markDown(addr)
		}
		return nil, err
	}
	h := c.newHeader(conn, req.op)
	payload, err := req.encode(h)
	if err != nil {
		return nil, err
	}
	if glog.V(4) {
		b := logging.NewKVBufferForLog()
		b.AddOpCode(req.op).AddMessageID(h.MessageID).AddAddr(addr).AddTopologyID(h.TopologyID).AddPayloadLen(len(payload))
		glog.Infof("send %s", b.String())
	}
	v, err := conn.Send(ctx, h.MessageID, payload, req.decoder)
	switch {
	case err == nil:
		c.pool.markUp(addr)
	case conn.IsClosed() && ctx.Err() == nil:
		c.pool.markDown(addr)
	}
	return v, err
}

// execute sends req and, when the caller allowed it with WithRetry, sends
// it again after retryable failures. Every attempt resolves the owner from
// the current topology. Once no member of the active cluster can be
// connected to, the client fails over to the next configured cluster; only
// a call made WithRetry is sent again there.
func (c *clientImpl) execute(ctx context.Context, opts *optionData, req *request) (v interface{}, err error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	ctx, span := c.startSpan(ctx, req.op)
	defer func() { endSpan(span, err) }()

	tries := 1
	if opts.retry {
		tries += c.config.MaxRetries
	}
	failed := make(map[proto.ServerAddress]bool)
	failedOver := false
	var addr proto.ServerAddress
	for try := 1; ; try++ {
		if addr, err = c.route(req.key, failed); err == nil {
			addServerAttr(span, addr, try)
			if v, err = c.send(ctx, addr, req); err == nil {
				return v, nil
			}
		}
		if !errors.IsRetryable(err) || ctx.Err() != nil || c.closed.Load() {
			break
		}
		failed[addr] = true
		if try < tries {
			c.metrics.Retried()
			c.logRetry(req.op, addr, try, err)
			continue
		}
		if failedOver || !c.pool.unreachable(c.router.Members()) || !c.failover() {
			break
		}
		failedOver = true
		if !opts.retry {
			break
		}
		failed = make(map[proto.ServerAddress]bool)
		tries = try + 1 + c.config.MaxRetries
	}
	c.logError(req.op, addr, err)
	return nil, err
}

// failover activates the next configured cluster. It reports false when
// there is no other cluster.
func (c *clientImpl) failover() bool {
	if len(c.config.Clusters) == 0 {
		return false
	}
	c.sites.Failover()
	c.metrics.FailedOver()
	c.pool.retain(c.router.Members())
	c.startFailback()
	return true
}

func (c *clientImpl) startFailback() {
	if c.closed.Load() || !c.sites.FailedOver() {
		return
	}
	if c.watching.CompareAndSwap(false, true) {
		go c.watchDefault()
	}
}

// watchDefault dials the default cluster every FailbackInterval while the
// client is failed over, and switches back once one of its servers accepts
// a connection.
func (c *clientImpl) watchDefault() {
	ticker := time.NewTicker(c.config.FailbackInterval.Duration)
	defer ticker.Stop()
	for c.sites.FailedOver() {
		select {
		case <-c.chClose:
			c.watching.Store(false)
			return
		case <-ticker.C:
		}
		if addr, ok := c.reachDefault(); ok && c.sites.FailBack() {
			glog.Infof("failed back to cluster %s via %s", cluster.DefaultSite, addr)
			c.pool.retain(c.router.Members())
		}
	}
	c.watching.Store(false)
	// a failover may have happened between the last check and the store
	c.startFailback()
}

func (c *clientImpl) reachDefault() (proto.ServerAddress, bool) {
	for _, addr := range c.sites.Default().Servers {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.ConnectTimeout.Duration+c.config.RequestTimeout.Duration)
		err := c.pool.reach(ctx, addr)
		cancel()
		if err == nil {
			return addr, true
		}
		if glog.V(2) {
			glog.Infof("default cluster server %s still unreachable: %s", addr, err)
		}
	}
	return proto.ServerAddress{}, false
}

func (c *clientImpl) logRetry(op proto.OpCode, addr proto.ServerAddress, try int, err error) {
	b := logging.NewKVBufferForLog()
	b.AddOpCode(op).AddAddr(addr).AddTryNo(try).AddError(err)
	glog.Warningf("retrying %s", b.String())
}

func (c *clientImpl) logError(op proto.OpCode, addr proto.ServerAddress, err error) {
	if err == nil {
		return
	}
	if goerrors.Is(err, context.Canceled) {
		if glog.V(2) {
			glog.Infof("op=%s canceled", op)
		}
		return
	}
	b := logging.NewKVBufferForLog()
	b.AddOpCode(op).AddAddr(addr).AddCacheName(c.config.CacheName).
		AddTopologyID(c.router.TopologyID()).AddError(err)
	glog.Errorf("[ERROR] %s response_timeout=%dms", b.String(), c.config.RequestTimeout.Milliseconds())
}

func (c *clientImpl) encodeKey(key interface{}) ([]byte, error) {
	return c.protocol.EncodeKey(key)
}

func (c *clientImpl) decodeValue(b []byte) (interface{}, error) {
	if b == nil {
		return nil, nil
	}
	return c.protocol.DecodeValue(b)
}

func (c *clientImpl) keyRequest(op proto.OpCode, key []byte, opts *optionData, decoder proto.Decoder) *request {
	return &request{
		op:  op,
		key: key,
		encode: func(h *proto.RequestHeader) ([]byte, error) {
			return c.protocol.EncodeKeyRequest(h, key, opts.writeOptions()), nil
		},
		decoder: decoder,
	}
}

func (c *clientImpl) emptyRequest(op proto.OpCode, decoder proto.Decoder) *request {
	return &request{
		op: op,
		encode: func(h *proto.RequestHeader) ([]byte, error) {
			return c.protocol.EncodeEmpty(h), nil
		},
		decoder: decoder,
	}
}

func (c *clientImpl) Get(ctx context.Context, key interface{}, opts ...IOption) (interface{}, error) {
	options := newOptionData(opts...)
	k, err := c.encodeKey(key)
	if err != nil {
		return nil, err
	}
	v, err := c.execute(ctx, options, c.keyRequest(proto.OpCodeGet, k, options, proto.DecodeValue))
	if err != nil {
		return nil, err
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, unexpectedValue("Get", v)
	}
	return c.decodeValue(b)
}

func (c *clientImpl) GetWithMetadata(ctx context.Context, key interface{}, opts ...IOption) (*Entry, error) {
	options := newOptionData(opts...)
	k, err := c.encodeKey(key)
	if err != nil {
		return nil, err
	}
	v, err := c.execute(ctx, options, c.keyRequest(proto.OpCodeGetWithMetadata, k, options, proto.DecodeWithMetadata))
	if err != nil {
		return nil, err
	}
	mv, ok := v.(*proto.MetadataValue)
	if !ok {
		return nil, unexpectedValue("GetWithMetadata", v)
	}
	if mv == nil {
		return nil, nil
	}
	value, err := c.decodeValue(mv.Value)
	if err != nil {
		return nil, err
	}
	md := mv.Metadata
	return &Entry{Key: key, Value: value, Metadata: &md}, nil
}

func (c *clientImpl) ContainsKey(ctx context.Context, key interface{}, opts ...IOption) (bool, error) {
	options := newOptionData(opts...)
	k, err := c.encodeKey(key)
	if err != nil {
		return false, err
	}
	v, err := c.execute(ctx, options, c.keyRequest(proto.OpCodeContainsKey, k, options, proto.DecodeContains))
	if err != nil {
		return false, err
	}
	found, ok := v.(bool)
	if !ok {
		return false, unexpectedValue("ContainsKey", v)
	}
	return found, nil
}

func (c *clientImpl) writeResult(op proto.OpCode, v interface{}) (*Result, error) {
	wr, ok := v.(*proto.WriteResult)
	if !ok {
		return nil, unexpectedValue(op.String(), v)
	}
	r := &Result{Status: wr.Status, Executed: wr.Executed()}
	if wr.Previous != nil {
		prev, err := c.protocol.DecodeValue(wr.Previous)
		if err != nil {
			return nil, err
		}
		r.Previous = prev
	}
	return r, nil
}

func (c *clientImpl) put(ctx context.Context, op proto.OpCode, key, value interface{}, opts []IOption) (*Result, error) {
	options := newOptionData(opts...)
	k, err := c.encodeKey(key)
	if err != nil {
		return nil, err
	}
	val, err := c.protocol.EncodeValue(value)
	if err != nil {
		return nil, err
	}
	v, err := c.execute(ctx, options, &request{
		op:  op,
		key: k,
		encode: func(h *proto.RequestHeader) ([]byte, error) {
			return c.protocol.EncodePut(h, k, val, options.writeOptions())
		},
		decoder: proto.DecodeWriteResult,
	})
	if err != nil {
		return nil, err
	}
	return c.writeResult(op, v)
}

func (c *clientImpl) Put(ctx context.Context, key interface{}, value interface{}, opts ...IOption) (*Result, error) {
	return c.put(ctx, proto.OpCodePut, key, value, opts)
}

func (c *clientImpl) PutIfAbsent(ctx context.Context, key interface{}, value interface{}, opts ...IOption) (*Result, error) {
	return c.put(ctx, proto.OpCodePutIfAbsent, key, value, opts)
}

func (c *clientImpl) Replace(ctx context.Context, key interface{}, value interface{}, opts ...IOption) (*Result, error) {
	return c.put(ctx, proto.OpCodeReplace, key, value, opts)
}

func (c *clientImpl) ReplaceWithVersion(ctx context.Context, key interface{}, value interface{}, version int64, opts ...IOption) (*Result, error) {
	options := newOptionData(opts...)
	k, err := c.encodeKey(key)
	if err != nil {
		return nil, err
	}
	val, err := c.protocol.EncodeValue(value)
	if err != nil {
		return nil, err
	}
	v, err := c.execute(ctx, options, &request{
		op:  proto.OpCodeReplaceIfUnmodified,
		key: k,
		encode: func(h *proto.RequestHeader) ([]byte, error) {
			return c.protocol.EncodeReplaceWithVersion(h, k, val, version, options.writeOptions())
		},
		decoder: proto.DecodeWriteResult,
	})
	if err != nil {
		return nil, err
	}
	return c.writeResult(proto.OpCodeReplaceIfUnmodified, v)
}

func (c *clientImpl) Remove(ctx context.Context, key interface{}, opts ...IOption) (*Result, error) {
	options := newOptionData(opts...)
	k, err := c.encodeKey(key)
	if err != nil {
		return nil, err
	}
	v, err := c.execute(ctx, options, c.keyRequest(proto.OpCodeRemove, k, options, proto.DecodeWriteResult))
	if err != nil {
		return nil, err
	}
	return c.writeResult(proto.OpCodeRemove, v)
}

func (c *clientImpl) RemoveWithVersion(ctx context.Context, key interface{}, version int64, opts ...IOption) (*Result, error) {
	options := newOptionData(opts...)
	k, err := c.encodeKey(key)
	if err != nil {
		return nil, err
	}
	v, err := c.execute(ctx, options, &request{
		op:  proto.OpCodeRemoveIfUnmodified,
		key: k,
		encode: func(h *proto.RequestHeader) ([]byte, error) {
			return c.protocol.EncodeRemoveWithVersion(h, k, version, options.writeOptions()), nil
		},
		decoder: proto.DecodeWriteResult,
	})
	if err != nil {
		return nil, err
	}
	return c.writeResult(proto.OpCodeRemoveIfUnmodified, v)
}

// GetAll returns the entries found, in server order. Missing keys are left
// out.
func (c *clientImpl) GetAll(ctx context.Context, keys []interface{}, opts ...IOption) ([]*Entry, error) {
	options := newOptionData(opts...)
	encoded := make([][]byte, 0, len(keys))
	for _, key := range keys {
		k, err := c.encodeKey(key)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, k)
	}
	v, err := c.execute(ctx, options, &request{
		op: proto.OpCodeGetAll,
		encode: func(h *proto.RequestHeader) ([]byte, error) {
			return c.protocol.EncodeGetAll(h, encoded), nil
		},
		decoder: proto.DecodeGetAll,
	})
	if err != nil {
		return nil, err
	}
	kvs, ok := v.([]proto.KeyValue)
	if !ok {
		return nil, unexpectedValue("GetAll", v)
	}
	entries := make([]*Entry, 0, len(kvs))
	for _, kv := range kvs {
		e := &Entry{}
		if e.Key, err = c.protocol.DecodeKey(kv.Key); err != nil {
			return nil, err
		}
		if e.Value, err = c.protocol.DecodeValue(kv.Value); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (c *clientImpl) PutAll(ctx context.Context, entries []*Entry, opts ...IOption) error {
	options := newOptionData(opts...)
	kvs := make([]proto.KeyValue, 0, len(entries))
	for _, e := range entries {
		k, err := c.encodeKey(e.Key)
		if err != nil {
			return err
		}
		val, err := c.protocol.EncodeValue(e.Value)
		if err != nil {
			return err
		}
		kvs = append(kvs, proto.KeyValue{Key: k, Value: val})
	}
	_, err := c.execute(ctx, options, &request{
		op: proto.OpCodePutAll,
		encode: func(h *proto.RequestHeader) ([]byte, error) {
			return c.protocol.EncodePutAll(h, kvs, options.writeOptions())
		},
		decoder: proto.DecodeNone,
	})
	return err
}

func (c *clientImpl) Clear(ctx context.Context, opts ...IOption) error {
	_, err := c.execute(ctx, newOptionData(opts...), c.emptyRequest(proto.OpCodeClear, proto.DecodeNone))
	return err
}

func (c *clientImpl) Size(ctx context.Context, opts ...IOption) (int64, error) {
	v, err := c.execute(ctx, newOptionData(opts...), c.emptyRequest(proto.OpCodeSize, proto.DecodeSize))
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok {
		return 0, unexpectedValue("Size", v)
	}
	return n, nil
}

func (c *clientImpl) Stats(ctx context.Context, opts ...IOption) (map[string]string, error) {
	v, err := c.execute(ctx, newOptionData(opts...), c.emptyRequest(proto.OpCodeStats, proto.DecodeStats))
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]string)
	if !ok {
		return nil, unexpectedValue("Stats", v)
	}
	return m, nil
}

func (c *clientImpl) Ping(ctx context.Context, opts ...IOption) (*proto.PingResponse, error) {
	v, err := c.execute(ctx, newOptionData(opts...), c.emptyRequest(proto.OpCodePing, c.protocol.PingDecoder()))
	if err != nil {
		return nil, err
	}
	resp, ok := v.(*proto.PingResponse)
	if !ok {
		return nil, unexpectedValue("Ping", v)
	}
	return resp, nil
}

func (c *clientImpl) SwitchToCluster(name string) error {
	changed, err := c.sites.SwitchTo(name)
	if err != nil {
		return err
	}
	if changed {
		c.pool.retain(c.router.Members())
	}
	return nil
}

func (c *clientImpl) SwitchToDefaultCluster() {
	if c.sites.SwitchToDefault() {
		c.pool.retain(c.router.Members())
	}
}

func (c *clientImpl) ActiveCluster() string {
	return c.sites.Active()
}
