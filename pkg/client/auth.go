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

	"github.com/golang/glog"

	"hotrod/internal/cli"
	"hotrod/pkg/errors"
	"hotrod/pkg/logging"
	"hotrod/pkg/proto"
)

const kMaxAuthRounds = 8

// onConnect authenticates a new connection when auth is enabled and pings
// it, which also installs the server topology.
func (c *clientImpl) onConnect(ctx context.Context, conn *cli.Connection) error {
	if c.config.Auth.Enabled {
		if err := c.authenticate(ctx, conn); err != nil {
			return err
		}
	}
	resp, err := c.pingConn(ctx, conn)
	if err != nil {
		return err
	}
	if glog.V(2) {
		glog.Infof("connected to %s server_version=%s", conn.Addr(), resp.ServerVersion)
	}
	return nil
}

func (c *clientImpl) pingConn(ctx context.Context, conn *cli.Connection) (*proto.PingResponse, error) {
	p := conn.Protocol()
	h := c.newHeader(conn, proto.OpCodePing)
	v, err := conn.Send(ctx, h.MessageID, p.EncodeEmpty(h), p.PingDecoder())
	if err != nil {
		return nil, err
	}
	resp, ok := v.(*proto.PingResponse)
	if !ok {
		return nil, unexpectedValue("Ping", v)
	}
	return resp, nil
}

// authenticate runs authMechList, then auth rounds until the server reports
// completion. Challenges of unfinished rounds are fed back to the mechanism.
func (c *clientImpl) authenticate(ctx context.Context, conn *cli.Connection) error {
	p := conn.Protocol()
	h := c.newHeader(conn, proto.OpCodeAuthMechList)
	v, err := conn.Send(ctx, h.MessageID, p.EncodeEmpty(h), p.MechListDecoder())
	if err != nil {
		return err
	}
	advertised, ok := v.([]string)
	if !ok {
		return unexpectedValue("AuthMechList", v)
	}
	mech, err := c.registry.Select(c.config.Auth.Mechanism, advertised)
	if err != nil {
		return err
	}
	cred := c.config.Auth.credentials()

	for round := 1; round <= kMaxAuthRounds; round++ {
		token, err := mech.Response(cred)
		if err != nil {
			return err
		}
		h = c.newHeader(conn, proto.OpCodeAuth)
		v, err = conn.Send(ctx, h.MessageID, p.EncodeAuth(h, mech.Name(), token), p.AuthDecoder())
		if err != nil {
			return err
		}
		resp, ok := v.(*proto.AuthResponse)
		if !ok {
			return unexpectedValue("Auth", v)
		}
		if resp.Completed {
			if len(resp.Challenge) != 0 {
				if err = mech.Challenge(resp.Challenge); err != nil {
					return err
				}
			}
			if glog.V(2) {
				b := logging.NewKVBufferForLog()
				b.AddAddr(conn.Addr()).Add([]byte("mech"), mech.Name()).AddInt([]byte("rounds"), round)
				glog.Infof("authenticated %s", b.String())
			}
			return nil
		}
		if err = mech.Challenge(resp.Challenge); err != nil {
			return err
		}
	}
	return errors.Newf(errors.KindProtocol, "%s authentication did not complete in %d rounds", mech.Name(), kMaxAuthRounds)
}
