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
	"context"
	goerrors "errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"hotrod/pkg/errors"
	"hotrod/pkg/proto"
)

const kNamespace = "hotrod"

// Metrics holds the client collectors. A nil *Metrics records nothing.
type Metrics struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	inflight    prometheus.Gauge
	connections *prometheus.CounterVec
	events      *prometheus.CounterVec
	topologyID  prometheus.Gauge
	retries     prometheus.Counter
	failovers   prometheus.Counter
}

// NewMetrics registers the collectors with reg. A nil reg leaves them
// unregistered, which tests use to read values without a registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: kNamespace,
			Name:      "requests_total",
			Help:      "Requests completed by opcode and outcome",
		}, []string{"op", "outcome"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: kNamespace,
			Name:      "request_duration_seconds",
			Help:      "Round trip time of requests",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		}, []string{"op"}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: kNamespace,
			Name:      "requests_in_flight",
			Help:      "Requests waiting for a response",
		}),
		connections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: kNamespace,
			Name:      "connection_events_total",
			Help:      "Connection lifecycle events",
		}, []string{"event"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: kNamespace,
			Name:      "listener_events_total",
			Help:      "Cache events dispatched to listeners by type",
		}, []string{"type"}),
		topologyID: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: kNamespace,
			Name:      "topology_id",
			Help:      "Id of the topology in use",
		}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: kNamespace,
			Name:      "retries_total",
			Help:      "Requests sent again after a retryable failure",
		}),
		failovers: factory.NewCounter(prometheus.CounterOpts{
			Namespace: kNamespace,
			Name:      "site_failovers_total",
			Help:      "Switches to another configured cluster",
		}),
	}
}

const (
	ConnOpened    = "open"
	ConnClosed    = "close"
	ConnFailed    = "connect_error"
	ConnBroken    = "broken"
	OutcomeOk     = "ok"
	OutcomeCancel = "canceled"
)

// Outcome names the result of a request for the requests_total label.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOk
	}
	if goerrors.Is(err, context.Canceled) || goerrors.Is(err, context.DeadlineExceeded) {
		return OutcomeCancel
	}
	switch errors.KindOf(err) {
	case errors.KindTransport:
		return "transport"
	case errors.KindProtocol:
		return "protocol"
	case errors.KindServer:
		return "server"
	case errors.KindConfig:
		return "config"
	case errors.KindListener:
		return "listener"
	}
	return "other"
}

func (m *Metrics) RequestStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) RequestDone(op proto.OpCode, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inflight.Dec()
	name := op.String()
	m.requests.WithLabelValues(name, Outcome(err)).Inc()
	m.latency.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (m *Metrics) ConnectionEvent(event string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(event).Inc()
}

func (m *Metrics) EventDispatched(typ proto.EventType) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(typ.String()).Inc()
}

func (m *Metrics) TopologyInstalled(id uint32) {
	if m == nil {
		return
	}
	m.topologyID.Set(float64(id))
}

func (m *Metrics) Retried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) FailedOver() {
	if m == nil {
		return
	}
	m.failovers.Inc()
}
