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

package stats

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"hotrod/pkg/errors"
	"hotrod/pkg/proto"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RequestStarted()
	m.RequestStarted()
	if v := testutil.ToFloat64(m.inflight); v != 2 {
		t.Errorf("in flight %v", v)
	}
	m.RequestDone(proto.OpCodePut, nil, time.Millisecond)
	m.RequestDone(proto.OpCodeGet, errors.New(errors.KindTransport, "reset"), time.Millisecond)
	if v := testutil.ToFloat64(m.inflight); v != 0 {
		t.Errorf("in flight %v", v)
	}
	if v := testutil.ToFloat64(m.requests.WithLabelValues("Put", OutcomeOk)); v != 1 {
		t.Errorf("put ok %v", v)
	}
	if v := testutil.ToFloat64(m.requests.WithLabelValues("Get", "transport")); v != 1 {
		t.Errorf("get transport %v", v)
	}

	m.EventDispatched(proto.EventCreated)
	m.ConnectionEvent(ConnOpened)
	m.TopologyInstalled(9)
	if v := testutil.ToFloat64(m.events.WithLabelValues("create")); v != 1 {
		t.Errorf("events %v", v)
	}
	if v := testutil.ToFloat64(m.topologyID); v != 9 {
		t.Errorf("topology %v", v)
	}
	if n := testutil.CollectAndCount(m.latency); n != 2 {
		t.Errorf("latency series %d", n)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RequestStarted()
	m.RequestDone(proto.OpCodePut, nil, 0)
	m.ConnectionEvent(ConnClosed)
	m.EventDispatched(proto.EventRemoved)
	m.TopologyInstalled(1)
	m.Retried()
	m.FailedOver()
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOk},
		{errors.New(errors.KindServer, "x"), "server"},
		{errors.New(errors.KindConfig, "x"), "config"},
		{errors.New(errors.KindProtocol, "x"), "protocol"},
	}
	for _, tc := range tests {
		if got := Outcome(tc.err); got != tc.want {
			t.Errorf("Outcome(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
