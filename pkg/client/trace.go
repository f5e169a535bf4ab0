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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"hotrod/pkg/proto"
)

const kTracerName = "hotrod/pkg/client"

func newTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		return otel.Tracer(kTracerName)
	}
	return tp.Tracer(kTracerName)
}

func (c *clientImpl) startSpan(ctx context.Context, op proto.OpCode) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "hotrod."+op.String(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "infinispan"),
			attribute.String("db.name", c.config.CacheName),
			attribute.String("hotrod.cluster", c.sites.Active()),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func addServerAttr(span trace.Span, addr proto.ServerAddress, try int) {
	span.SetAttributes(
		attribute.String("server.address", addr.String()),
		attribute.Int("hotrod.try", try),
	)
}
