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
	"math"
)

// ByteCursor is a growable byte sequence with a read offset and a mark.
// Writers append at the end, readers consume from the offset.
//
// Note: it is not goroutine safe. A cursor is owned by one connection.
type ByteCursor struct {
	buf    []byte
	offset int
	mark   int
}

func NewByteCursor(b []byte) *ByteCursor {
	return &ByteCursor{buf: b}
}

func NewByteCursorWithSize(sz int) *ByteCursor {
	return &ByteCursor{buf: make([]byte, 0, sz)}
}

func (c *ByteCursor) Bytes() []byte {
	return c.buf
}

// Unread returns the bytes between the offset and the end.
func (c *ByteCursor) Unread() []byte {
	return c.buf[c.offset:]
}

func (c *ByteCursor) Len() int {
	return len(c.buf)
}

func (c *ByteCursor) Remaining() int {
	return len(c.buf) - c.offset
}

func (c *ByteCursor) Offset() int {
	return c.offset
}

func (c *ByteCursor) Reset() {
	c.buf = c.buf[:0]
	c.offset = 0
	c.mark = 0
}

func (c *ByteCursor) require(n int) error {
	if n < 0 {
		return ErrInvalidLength
	}
	if len(c.buf)-c.offset < n {
		return ErrIncomplete
	}
	return nil
}

func (c *ByteCursor) WriteByte(b byte) error {
	c.buf = append(c.buf, b)
	return nil
}

func (c *ByteCursor) WriteFixed(b []byte) {
	c.buf = append(c.buf, b...)
}

func (c *ByteCursor) WriteUint16(v uint16) {
	c.buf = append(c.buf, byte(v>>8), byte(v))
}

func (c *ByteCursor) WriteInt64(v int64) {
	var raw [8]byte
	EncByteOrder.PutUint64(raw[:], uint64(v))
	c.buf = append(c.buf, raw[:]...)
}

// WriteBytes writes a VInt length followed by b.
func (c *ByteCursor) WriteBytes(b []byte) {
	c.WriteUVarint32(uint32(len(b)))
	c.buf = append(c.buf, b...)
}

func (c *ByteCursor) WriteString(s string) {
	c.WriteUVarint32(uint32(len(s)))
	c.buf = append(c.buf, s...)
}

// WriteOptionalBytes writes -1 as a signed VInt when b is nil, and a
// signed length followed by b otherwise.
func (c *ByteCursor) WriteOptionalBytes(b []byte) {
	if b == nil {
		c.WriteSVarint32(-1)
		return
	}
	c.WriteSVarint32(int32(len(b)))
	c.buf = append(c.buf, b...)
}

func (c *ByteCursor) ReadByte() (byte, error) {
	if err := c.require(1); err != nil {
		return 0, err
	}
	b := c.buf[c.offset]
	c.offset++
	return b, nil
}

func (c *ByteCursor) ReadBool() (bool, error) {
	b, err := c.ReadByte()
	return b != 0, err
}

// ReadFixed returns a copy of the next n bytes.
func (c *ByteCursor) ReadFixed(n int) ([]byte, error) {
	if err := c.require(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, c.buf[c.offset:c.offset+n])
	c.offset += n
	return out, nil
}

func (c *ByteCursor) Skip(n int) error {
	if err := c.require(n); err != nil {
		return err
	}
	c.offset += n
	return nil
}

func (c *ByteCursor) ReadUint16() (uint16, error) {
	if err := c.require(2); err != nil {
		return 0, err
	}
	v := EncByteOrder.Uint16(c.buf[c.offset:])
	c.offset += 2
	return v, nil
}

func (c *ByteCursor) ReadInt64() (int64, error) {
	if err := c.require(8); err != nil {
		return 0, err
	}
	v := EncByteOrder.Uint64(c.buf[c.offset:])
	c.offset += 8
	return int64(v), nil
}

func (c *ByteCursor) ReadBytes() ([]byte, error) {
	n, err := c.ReadUVarint32()
	if err != nil {
		return nil, err
	}
	if n > math.MaxInt32 {
		return nil, ErrInvalidLength
	}
	return c.ReadFixed(int(n))
}

func (c *ByteCursor) ReadString() (string, error) {
	b, err := c.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadOptionalBytes is the counterpart of WriteOptionalBytes. A negative
// length yields nil.
func (c *ByteCursor) ReadOptionalBytes() ([]byte, error) {
	n, err := c.ReadSVarint32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	return c.ReadFixed(int(n))
}
