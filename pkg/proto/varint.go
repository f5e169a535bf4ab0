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

const (
	kMaxVIntBytes  = 5
	kMaxVLongBytes = 10
)

// UVarintSize returns the number of bytes v occupies on the wire.
func UVarintSize(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

func (c *ByteCursor) WriteUVarint32(v uint32) {
	for v >= 0x80 {
		c.buf = append(c.buf, byte(v)|0x80)
		v >>= 7
	}
	c.buf = append(c.buf, byte(v))
}

func (c *ByteCursor) WriteUVarint64(v uint64) {
	for v >= 0x80 {
		c.buf = append(c.buf, byte(v)|0x80)
		v >>= 7
	}
	c.buf = append(c.buf, byte(v))
}

// WriteVInt is the checked form of WriteUVarint32.
func (c *ByteCursor) WriteVInt(v int) error {
	if v < 0 {
		return ErrNegativeVarint
	}
	if uint64(v) > 0xFFFFFFFF {
		return ErrVarintOverflow
	}
	c.WriteUVarint32(uint32(v))
	return nil
}

// WriteVLong is the checked form of WriteUVarint64.
func (c *ByteCursor) WriteVLong(v int64) error {
	if v < 0 {
		return ErrNegativeVarint
	}
	c.WriteUVarint64(uint64(v))
	return nil
}

// zig-zag encoding, so small negative numbers stay short
func (c *ByteCursor) WriteSVarint32(v int32) {
	c.WriteUVarint32(uint32((v << 1) ^ (v >> 31)))
}

func (c *ByteCursor) WriteSVarint64(v int64) {
	c.WriteUVarint64(uint64((v << 1) ^ (v >> 63)))
}

func (c *ByteCursor) readUVarint(maxBytes int) (uint64, error) {
	var v uint64
	var shift uint
	for i := 0; ; i++ {
		if i >= maxBytes {
			return 0, ErrVarintOverflow
		}
		if c.offset+i >= len(c.buf) {
			return 0, ErrIncomplete
		}
		b := c.buf[c.offset+i]
		v |= uint64(b&0x7F) << shift
		if b < 0x80 {
			c.offset += i + 1
			return v, nil
		}
		shift += 7
	}
}

func (c *ByteCursor) ReadUVarint32() (uint32, error) {
	v, err := c.readUVarint(kMaxVIntBytes)
	if err != nil {
		return 0, err
	}
	if v > 0xFFFFFFFF {
		return 0, ErrVarintOverflow
	}
	return uint32(v), nil
}

func (c *ByteCursor) ReadUVarint64() (uint64, error) {
	return c.readUVarint(kMaxVLongBytes)
}

// ReadVInt returns the value as an int, failing on values that do not fit
// a non-negative int32.
func (c *ByteCursor) ReadVInt() (int, error) {
	v, err := c.ReadUVarint32()
	if err != nil {
		return 0, err
	}
	if v > 0x7FFFFFFF {
		return 0, ErrInvalidLength
	}
	return int(v), nil
}

func (c *ByteCursor) ReadSVarint32() (int32, error) {
	v, err := c.ReadUVarint32()
	if err != nil {
		return 0, err
	}
	return int32(v>>1) ^ -int32(v&1), nil
}

func (c *ByteCursor) ReadSVarint64() (int64, error) {
	v, err := c.ReadUVarint64()
	if err != nil {
		return 0, err
	}
	return int64(v>>1) ^ -int64(v&1), nil
}
