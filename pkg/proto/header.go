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

type RequestHeader struct {
	MessageID  uint64
	Op         OpCode
	Flags      uint32
	TopologyID uint32
}

type ResponseHeader struct {
	MessageID uint64
	Op        OpCode
	Status    OpStatus
	// set when the frame carried a topology change marker
	Topology *TopologyUpdate
}

func (h *ResponseHeader) IsEvent() bool {
	return h.Op.IsEvent()
}

// IsError reports whether the body is an error string, either because of
// the error opcode or a server error status.
func (h *ResponseHeader) IsError() bool {
	return h.Op == OpCodeError || h.Status.IsError()
}

// WriteHeader starts a request frame. Media type descriptors follow the
// header when the version negotiates them.
func (p *Protocol) WriteHeader(c *ByteCursor, h *RequestHeader) {
	c.WriteByte(RequestMagic)
	c.WriteUVarint64(h.MessageID)
	c.WriteByte(byte(p.version))
	c.WriteByte(byte(h.Op))
	c.WriteString(p.cfg.CacheName)
	c.WriteUVarint32(h.Flags)
	c.WriteByte(byte(p.cfg.Intelligence))
	c.WriteUVarint32(h.TopologyID)
	if p.media != nil {
		p.media.writeMediaTypes(c, p.cfg.KeyCodec.MediaType(), p.cfg.ValueCodec.MediaType())
	}
}

// ReadResponseHeader decodes a response header including an optional
// topology payload. Nothing outside the cursor is touched, so a caller may
// rewind on ErrIncomplete.
func (p *Protocol) ReadResponseHeader(c *ByteCursor) (*ResponseHeader, error) {
	magic, err := c.ReadByte()
	if err != nil {
		return nil, err
	}
	if magic != ResponseMagic {
		return nil, NewProtocolErrorf("invalid response magic %#x", magic)
	}
	h := &ResponseHeader{}
	if h.MessageID, err = c.ReadUVarint64(); err != nil {
		return nil, err
	}
	op, err := c.ReadByte()
	if err != nil {
		return nil, err
	}
	h.Op = OpCode(op)
	status, err := c.ReadByte()
	if err != nil {
		return nil, err
	}
	h.Status = OpStatus(status)
	changed, err := c.ReadBool()
	if err != nil {
		return nil, err
	}
	if changed {
		if h.Topology, err = ReadTopology(c, p.cfg.Intelligence); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// ReadErrorBody reads the error string of an error response.
func ReadErrorBody(c *ByteCursor) (string, error) {
	return c.ReadString()
}

// WriteResponseHeader is the server side counterpart of ReadResponseHeader.
func WriteResponseHeader(c *ByteCursor, h *ResponseHeader, intelligence Intelligence) {
	c.WriteByte(ResponseMagic)
	c.WriteUVarint64(h.MessageID)
	c.WriteByte(byte(h.Op))
	c.WriteByte(byte(h.Status))
	if h.Topology == nil {
		c.WriteByte(0)
		return
	}
	c.WriteByte(1)
	WriteTopology(c, h.Topology, intelligence)
}

// IncomingRequest is a request header as a server sees it.
type IncomingRequest struct {
	RequestHeader
	Version        Version
	CacheName      string
	Intelligence   Intelligence
	KeyMediaType   *MediaType
	ValueMediaType *MediaType
}

// ReadRequestHeader decodes a request header. In-process fake servers use
// it to share the client codec.
func ReadRequestHeader(c *ByteCursor) (*IncomingRequest, error) {
	magic, err := c.ReadByte()
	if err != nil {
		return nil, err
	}
	if magic != RequestMagic {
		return nil, ErrInvalidMagic
	}
	r := &IncomingRequest{}
	if r.MessageID, err = c.ReadUVarint64(); err != nil {
		return nil, err
	}
	v, err := c.ReadByte()
	if err != nil {
		return nil, err
	}
	r.Version = Version(v)
	op, err := c.ReadByte()
	if err != nil {
		return nil, err
	}
	r.Op = OpCode(op)
	if r.CacheName, err = c.ReadString(); err != nil {
		return nil, err
	}
	if r.Flags, err = c.ReadUVarint32(); err != nil {
		return nil, err
	}
	intelligence, err := c.ReadByte()
	if err != nil {
		return nil, err
	}
	r.Intelligence = Intelligence(intelligence)
	if r.TopologyID, err = c.ReadUVarint32(); err != nil {
		return nil, err
	}
	if r.Version >= Version29 {
		if r.KeyMediaType, err = ReadMediaType(c); err != nil {
			return nil, err
		}
		if r.ValueMediaType, err = ReadMediaType(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}
