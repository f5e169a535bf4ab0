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
	"crypto/tls"
	"net"
	"time"

	"github.com/golang/glog"

	"hotrod/pkg/errors"
	"hotrod/pkg/logging"
	"hotrod/pkg/proto"
	"hotrod/pkg/sec"
	"hotrod/pkg/stats"
)

const (
	kDefaultConnectTimeout = 2000 * time.Millisecond
	kDefaultRequestTimeout = 5 * time.Second
	kDefaultReadBufferSize = 32 * 1024
)

// Options configures a Connection.
type Options struct {
	Protocol       *proto.Protocol
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	WriteTimeout   time.Duration
	ReadBufferSize int
	TLSConfig      *tls.Config
	Metrics        *stats.Metrics

	// OnTopology receives topology payloads of completely decoded frames.
	// It runs on the processing loop and must not block.
	OnTopology func(from proto.ServerAddress, u *proto.TopologyUpdate)
	// OnClose is called once after the connection stopped, with the error
	// that stopped it.
	OnClose func(c *Connection, err error)
}

func (o *Options) setDefault() error {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = kDefaultConnectTimeout
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = kDefaultRequestTimeout
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = kDefaultReadBufferSize
	}
	if o.Protocol == nil {
		p, err := proto.NewProtocol(proto.DefaultVersion, proto.ProtocolConfig{})
		if err != nil {
			return err
		}
		o.Protocol = p
	}
	return nil
}

// Dial connects to addr, over TLS when opts.TLSConfig is set.
func Dial(ctx context.Context, addr proto.ServerAddress, opts Options) (*Connection, error) {
	if err := opts.setDefault(); err != nil {
		return nil, err
	}
	timeStart := time.Now()
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}

	var conn net.Conn
	var err error
	if opts.TLSConfig != nil {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: opts.TLSConfig}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr.String())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr.String())
	}
	if err != nil {
		opts.Metrics.ConnectionEvent(stats.ConnFailed)
		glog.Errorf("fail to connect %s error: %s", addr, err)
		return nil, errors.Wrapf(errors.KindTransport, err, "connect %s", addr)
	}
	opts.Metrics.ConnectionEvent(stats.ConnOpened)
	if glog.V(2) {
		b := logging.NewKVBufferForLog().AddAddr(addr).AddElapsed(time.Since(timeStart))
		if tlsConn, ok := conn.(*tls.Conn); ok {
			b.Add([]byte("ssl"), getConnectionState(tlsConn))
		}
		glog.Infof("connected %s", b.String())
	}
	return newConnection(conn, addr, opts), nil
}

// NewConnection wraps an established net.Conn, for example one end of a
// net.Pipe in tests.
func NewConnection(conn net.Conn, addr proto.ServerAddress, opts Options) (*Connection, error) {
	if err := opts.setDefault(); err != nil {
		return nil, err
	}
	return newConnection(conn, addr, opts), nil
}

func getConnectionState(c *tls.Conn) string {
	return sec.GetStateString(c.ConnectionState())
}
