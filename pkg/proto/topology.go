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

package proto

import (
	"net"
	"strconv"
)

type ServerAddress struct {
	Host string
	Port uint16
}

func (a ServerAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// TopologyUpdate is the topology payload of a response header, as decoded.
type TopologyUpdate struct {
	ID           uint32
	Servers      []ServerAddress
	HashFunction byte
	// Segments[i] lists server indices owning segment i, primary first.
	Segments [][]int
}

// ReadTopology decodes a topology payload. Segment tables are only sent to
// hash aware clients.
func ReadTopology(c *ByteCursor, intelligence Intelligence) (*TopologyUpdate, error) {
	t := &TopologyUpdate{}
	var err error
	if t.ID, err = c.ReadUVarint32(); err != nil {
		return nil, err
	}
	n, err := c.ReadVInt()
	if err != nil {
		return nil, err
	}
	// every entry takes at least one byte, check before allocating
	if err = c.require(n); err != nil {
		return nil, err
	}
	t.Servers = make([]ServerAddress, 0, n)
	for i := 0; i < n; i++ {
		host, err := c.ReadString()
		if err != nil {
			return nil, err
		}
		port, err := c.ReadUint16()
		if err != nil {
			return nil, err
		}
		t.Servers = append(t.Servers, ServerAddress{Host: host, Port: port})
	}
	if intelligence != IntelligenceHashAware {
		return t, nil
	}
	if t.HashFunction, err = c.ReadByte(); err != nil {
		return nil, err
	}
	if t.HashFunction == 0 {
		return t, nil
	}
	numSegments, err := c.ReadVInt()
	if err != nil {
		return nil, err
	}
	if err = c.require(numSegments); err != nil {
		return nil, err
	}
	t.Segments = make([][]int, numSegments)
	for i := 0; i < numSegments; i++ {
		numOwners, err := c.ReadByte()
		if err != nil {
			return nil, err
		}
		owners := make([]int, numOwners)
		for j := range owners {
			idx, err := c.ReadVInt()
			if err != nil {
				return nil, err
			}
			if idx >= n {
				return nil, NewProtocolErrorf("segment %d owner index %d out of %d servers", i, idx, n)
			}
			owners[j] = idx
		}
		t.Segments[i] = owners
	}
	return t, nil
}

func WriteTopology(c *ByteCursor, t *TopologyUpdate, intelligence Intelligence) {
	c.WriteUVarint32(t.ID)
	c.WriteUVarint32(uint32(len(t.Servers)))
	for _, s := range t.Servers {
		c.WriteString(s.Host)
		c.WriteUint16(s.Port)
	}
	if intelligence != IntelligenceHashAware {
		return
	}
	c.WriteByte(t.HashFunction)
	if t.HashFunction == 0 {
		return
	}
	c.WriteUVarint32(uint32(len(t.Segments)))
	for _, owners := range t.Segments {
		c.WriteByte(byte(len(owners)))
		for _, o := range owners {
			c.WriteUVarint32(uint32(o))
		}
	}
}
