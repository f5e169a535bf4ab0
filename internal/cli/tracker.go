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
	"time"

	"github.com/golang/glog"

	"hotrod/pkg/errors"
	"hotrod/pkg/proto"
	"hotrod/pkg/util"
)

const kMaxExpiredPending = 4096

var errRequestTimeout = errors.New(errors.KindTransport, "request timed out")

type PendingRequest struct {
	reqCtx       *RequestContext
	timeSent     time.Time
	timeToExpire time.Time
}

type PendingResponseMap map[uint64]*PendingRequest

// PendingTracker maps message ids to requests waiting for a response. It is
// owned by the processing loop of a single connection.
//
// A request that timed out keeps its decoder in expired: the server may
// still answer, and the frame has to be consumed to keep the stream in
// sync.
type PendingTracker struct {
	mapRequestsSent PendingResponseMap
	pendingQueue    []*PendingRequest
	expired         map[uint64]proto.Decoder
	responseTimer   *util.TimerWrapper
	requestTimeout  time.Duration
}

func newPendingTracker(requestTimeout time.Duration) *PendingTracker {
	return &PendingTracker{
		mapRequestsSent: make(PendingResponseMap),
		expired:         make(map[uint64]proto.Decoder),
		responseTimer:   util.NewTimerWrapper(),
		requestTimeout:  requestTimeout,
	}
}

func (p *PendingTracker) GetTimeoutCh() <-chan time.Time {
	return p.responseTimer.GetTimeoutCh()
}

func (p *PendingTracker) Len() int {
	return len(p.mapRequestsSent)
}

func (p *PendingTracker) OnRequestSent(reqCtx *RequestContext) error {
	if _, found := p.mapRequestsSent[reqCtx.msgID]; found {
		return errors.Newf(errors.KindConfig, "message id %d already in flight", reqCtx.msgID)
	}
	now := time.Now()
	pending := &PendingRequest{reqCtx: reqCtx, timeSent: now, timeToExpire: now.Add(p.requestTimeout)}
	reqCtx.timeSent = now
	p.pendingQueue = append(p.pendingQueue, pending)
	p.mapRequestsSent[reqCtx.msgID] = pending
	if p.responseTimer.IsStopped() {
		p.responseTimer.ResetAt(pending.timeToExpire)
	}
	return nil
}

func (p *PendingTracker) OnTimeout(now time.Time) {
	p.responseTimer.Stop()
	var i int
	for i = 0; i < len(p.pendingQueue); i++ {
		pr := p.pendingQueue[i]
		id := pr.reqCtx.msgID
		if cur, found := p.mapRequestsSent[id]; !found || cur != pr {
			continue
		}
		if pr.timeToExpire.After(now) {
			p.responseTimer.ResetAt(pr.timeToExpire)
			break
		}
		glog.Warningf("Timeout <- server: %s elapsed=%s,msgid=%d",
			pr.reqCtx.op, now.Sub(pr.timeSent), id)
		delete(p.mapRequestsSent, id)
		if len(p.expired) < kMaxExpiredPending {
			p.expired[id] = pr.reqCtx.decoder
		}
		pr.reqCtx.replyTimeout(errRequestTimeout)
	}
	if i != 0 {
		p.pendingQueue = append(p.pendingQueue[:0], p.pendingQueue[i:]...)
	}
}

// Lookup returns the decoder for a response. reqCtx is nil when the request
// already timed out and only the frame has to be consumed.
func (p *PendingTracker) Lookup(msgID uint64) (reqCtx *RequestContext, decoder proto.Decoder, found bool) {
	if pending, ok := p.mapRequestsSent[msgID]; ok {
		return pending.reqCtx, pending.reqCtx.decoder, true
	}
	if decoder, ok := p.expired[msgID]; ok {
		return nil, decoder, true
	}
	return nil, nil, false
}

// OnResponseReceived forgets a request whose response frame was decoded.
func (p *PendingTracker) OnResponseReceived(msgID uint64) *RequestContext {
	if pending, ok := p.mapRequestsSent[msgID]; ok {
		delete(p.mapRequestsSent, msgID)
		if len(p.mapRequestsSent) == 0 {
			p.pendingQueue = p.pendingQueue[:0]
			p.responseTimer.Stop()
		}
		return pending.reqCtx
	}
	delete(p.expired, msgID)
	return nil
}

// ClearOnError fails every pending request with err.
func (p *PendingTracker) ClearOnError(err error) {
	p.responseTimer.Stop()
	for k, v := range p.mapRequestsSent {
		v.reqCtx.ReplyError(err)
		delete(p.mapRequestsSent, k)
	}
	p.pendingQueue = p.pendingQueue[:0]
	p.expired = make(map[uint64]proto.Decoder)
}
