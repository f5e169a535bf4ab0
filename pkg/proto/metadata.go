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

// Metadata describes a stored entry. Lifespan and MaxIdle are in seconds;
// an infinite setting is reported with -1 for both the timestamp and the
// amount.
type Metadata struct {
	Created  int64
	Lifespan int
	LastUsed int64
	MaxIdle  int
	Version  int64
}

func (m *Metadata) IsImmortal() bool {
	return m.Lifespan < 0
}

// ReadMetadata decodes the flags byte, the timestamp pairs the flags do not
// mark as infinite, and the 8 byte entry version.
func ReadMetadata(c *ByteCursor) (*Metadata, error) {
	flags, err := c.ReadByte()
	if err != nil {
		return nil, err
	}
	m := &Metadata{Created: -1, Lifespan: -1, LastUsed: -1, MaxIdle: -1}
	if flags&kInfiniteLifespan == 0 {
		if m.Created, err = c.ReadInt64(); err != nil {
			return nil, err
		}
		if m.Lifespan, err = c.ReadVInt(); err != nil {
			return nil, err
		}
	}
	if flags&kInfiniteMaxIdle == 0 {
		if m.LastUsed, err = c.ReadInt64(); err != nil {
			return nil, err
		}
		if m.MaxIdle, err = c.ReadVInt(); err != nil {
			return nil, err
		}
	}
	if m.Version, err = c.ReadInt64(); err != nil {
		return nil, err
	}
	return m, nil
}

func WriteMetadata(c *ByteCursor, m *Metadata) {
	var flags byte
	if m.Lifespan < 0 {
		flags |= kInfiniteLifespan
	}
	if m.MaxIdle < 0 {
		flags |= kInfiniteMaxIdle
	}
	c.WriteByte(flags)
	if flags&kInfiniteLifespan == 0 {
		c.WriteInt64(m.Created)
		c.WriteUVarint32(uint32(m.Lifespan))
	}
	if flags&kInfiniteMaxIdle == 0 {
		c.WriteInt64(m.LastUsed)
		c.WriteUVarint32(uint32(m.MaxIdle))
	}
	c.WriteInt64(m.Version)
}
