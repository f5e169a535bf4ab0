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

// Decoder decodes the body of a response whose header has been read. It
// returns ErrIncomplete when the body is not fully buffered yet and must
// not keep references into the cursor.
type Decoder func(c *ByteCursor, h *ResponseHeader) (interface{}, error)

type KeyValue struct {
	Key   []byte
	Value []byte
}

// WriteOptions controls expiry and previous-value semantics of writes.
type WriteOptions struct {
	Lifespan Expiry
	MaxIdle  Expiry
	Previous bool
}

var DefaultWriteOptions = WriteOptions{Lifespan: DefaultExpiry, MaxIdle: DefaultExpiry}

// WriteResult is the outcome of a conditional or unconditional write.
type WriteResult struct {
	Status   OpStatus
	Previous []byte
}

func (r *WriteResult) Executed() bool {
	return r.Status.IsSuccess()
}

type MetadataValue struct {
	Metadata
	Value []byte
}

type PingResponse struct {
	KeyMediaType   *MediaType
	ValueMediaType *MediaType
	ServerVersion  Version
	Ops            []uint16
}

type AuthResponse struct {
	Completed bool
	Challenge []byte
}

func (p *Protocol) newFrame(h *RequestHeader) *ByteCursor {
	c := NewByteCursorWithSize(64)
	p.WriteHeader(c, h)
	return c
}

func (p *Protocol) writeFrame(h *RequestHeader, opts *WriteOptions) *ByteCursor {
	if opts != nil && opts.Previous {
		h.Flags |= FlagForceReturnValue
	}
	return p.newFrame(h)
}

// EncodeEmpty encodes requests without a body: clear, size, stats, ping
// and auth mech list.
func (p *Protocol) EncodeEmpty(h *RequestHeader) []byte {
	return p.newFrame(h).Bytes()
}

// EncodeKeyRequest encodes get, containsKey, getWithMetadata and remove.
func (p *Protocol) EncodeKeyRequest(h *RequestHeader, key []byte, opts *WriteOptions) []byte {
	c := p.writeFrame(h, opts)
	c.WriteBytes(key)
	return c.Bytes()
}

// EncodePut encodes put, putIfAbsent and replace.
func (p *Protocol) EncodePut(h *RequestHeader, key, value []byte, opts *WriteOptions) ([]byte, error) {
	if opts == nil {
		opts = &DefaultWriteOptions
	}
	c := p.writeFrame(h, opts)
	c.WriteBytes(key)
	if err := p.expiry.writeExpiry(c, opts.Lifespan, opts.MaxIdle); err != nil {
		return nil, err
	}
	c.WriteBytes(value)
	return c.Bytes(), nil
}

func (p *Protocol) EncodeReplaceWithVersion(h *RequestHeader, key, value []byte, version int64, opts *WriteOptions) ([]byte, error) {
	if opts == nil {
		opts = &DefaultWriteOptions
	}
	c := p.writeFrame(h, opts)
	c.WriteBytes(key)
	if err := p.expiry.writeExpiry(c, opts.Lifespan, opts.MaxIdle); err != nil {
		return nil, err
	}
	c.WriteInt64(version)
	c.WriteBytes(value)
	return c.Bytes(), nil
}

func (p *Protocol) EncodeRemoveWithVersion(h *RequestHeader, key []byte, version int64, opts *WriteOptions) []byte {
	c := p.writeFrame(h, opts)
	c.WriteBytes(key)
	c.WriteInt64(version)
	return c.Bytes()
}

func (p *Protocol) EncodePutAll(h *RequestHeader, entries []KeyValue, opts *WriteOptions) ([]byte, error) {
	if opts == nil {
		opts = &DefaultWriteOptions
	}
	c := p.newFrame(h)
	if err := p.expiry.writeExpiry(c, opts.Lifespan, opts.MaxIdle); err != nil {
		return nil, err
	}
	c.WriteUVarint32(uint32(len(entries)))
	for _, e := range entries {
		c.WriteBytes(e.Key)
		c.WriteBytes(e.Value)
	}
	return c.Bytes(), nil
}

func (p *Protocol) EncodeGetAll(h *RequestHeader, keys [][]byte) []byte {
	c := p.newFrame(h)
	c.WriteUVarint32(uint32(len(keys)))
	for _, k := range keys {
		c.WriteBytes(k)
	}
	return c.Bytes()
}

func (p *Protocol) EncodeAuth(h *RequestHeader, mech string, response []byte) []byte {
	c := p.newFrame(h)
	p.sasl.writeAuth(c, mech, response)
	return c.Bytes()
}

func DecodeNone(c *ByteCursor, h *ResponseHeader) (interface{}, error) {
	return nil, nil
}

// DecodeValue yields the value bytes, or nil when the key is absent.
func DecodeValue(c *ByteCursor, h *ResponseHeader) (interface{}, error) {
	if !h.Status.IsSuccess() {
		return []byte(nil), nil
	}
	return c.ReadBytes()
}

func DecodeWriteResult(c *ByteCursor, h *ResponseHeader) (interface{}, error) {
	r := &WriteResult{Status: h.Status}
	if h.Status.HasPrevious() {
		prev, err := c.ReadBytes()
		if err != nil {
			return nil, err
		}
		r.Previous = prev
	}
	return r, nil
}

func DecodeContains(c *ByteCursor, h *ResponseHeader) (interface{}, error) {
	return h.Status.IsSuccess(), nil
}

func DecodeWithMetadata(c *ByteCursor, h *ResponseHeader) (interface{}, error) {
	if !h.Status.IsSuccess() {
		return (*MetadataValue)(nil), nil
	}
	m, err := ReadMetadata(c)
	if err != nil {
		return nil, err
	}
	v, err := c.ReadBytes()
	if err != nil {
		return nil, err
	}
	return &MetadataValue{Metadata: *m, Value: v}, nil
}

func DecodeSize(c *ByteCursor, h *ResponseHeader) (interface{}, error) {
	n, err := c.ReadUVarint64()
	if err != nil {
		return nil, err
	}
	return int64(n), nil
}

func DecodeStats(c *ByteCursor, h *ResponseHeader) (interface{}, error) {
	n, err := c.ReadVInt()
	if err != nil {
		return nil, err
	}
	stats := make(map[string]string, n)
	for i := 0; i < n; i++ {
		k, err := c.ReadString()
		if err != nil {
			return nil, err
		}
		v, err := c.ReadString()
		if err != nil {
			return nil, err
		}
		stats[k] = v
	}
	return stats, nil
}

func DecodeGetAll(c *ByteCursor, h *ResponseHeader) (interface{}, error) {
	n, err := c.ReadVInt()
	if err != nil {
		return nil, err
	}
	if err = c.require(n); err != nil {
		return nil, err
	}
	entries := make([]KeyValue, 0, n)
	for i := 0; i < n; i++ {
		k, err := c.ReadBytes()
		if err != nil {
			return nil, err
		}
		v, err := c.ReadBytes()
		if err != nil {
			return nil, err
		}
		entries = append(entries, KeyValue{Key: k, Value: v})
	}
	return entries, nil
}

// PingDecoder returns the ping response decoder of this version.
func (p *Protocol) PingDecoder() Decoder {
	return func(c *ByteCursor, h *ResponseHeader) (interface{}, error) {
		return p.ping.readPing(p, c)
	}
}

func (p *Protocol) AuthDecoder() Decoder {
	return func(c *ByteCursor, h *ResponseHeader) (interface{}, error) {
		return p.sasl.readAuth(c)
	}
}

func (p *Protocol) MechListDecoder() Decoder {
	return func(c *ByteCursor, h *ResponseHeader) (interface{}, error) {
		return p.sasl.readMechList(c)
	}
}

type saslOps struct{}

func (saslOps) writeAuth(c *ByteCursor, mech string, response []byte) {
	c.WriteString(mech)
	c.WriteBytes(response)
}

func (saslOps) readAuth(c *ByteCursor) (*AuthResponse, error) {
	done, err := c.ReadBool()
	if err != nil {
		return nil, err
	}
	challenge, err := c.ReadBytes()
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Completed: done, Challenge: challenge}, nil
}

func (saslOps) readMechList(c *ByteCursor) ([]string, error) {
	n, err := c.ReadVInt()
	if err != nil {
		return nil, err
	}
	if err = c.require(n); err != nil {
		return nil, err
	}
	mechs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		m, err := c.ReadString()
		if err != nil {
			return nil, err
		}
		mechs = append(mechs, m)
	}
	return mechs, nil
}

type emptyPing struct{}

func (emptyPing) readPing(p *Protocol, c *ByteCursor) (*PingResponse, error) {
	return &PingResponse{ServerVersion: p.version}, nil
}

type mediaTypePing struct{}

func (mediaTypePing) readPing(p *Protocol, c *ByteCursor) (*PingResponse, error) {
	r := &PingResponse{ServerVersion: p.version}
	var err error
	if r.KeyMediaType, r.ValueMediaType, err = p.media.readMediaTypes(c); err != nil {
		return nil, err
	}
	return r, nil
}

// serverInfoPing also reads the server version and the list of opcodes the
// server implements.
type serverInfoPing struct{}

func (serverInfoPing) readPing(p *Protocol, c *ByteCursor) (*PingResponse, error) {
	r, err := mediaTypePing{}.readPing(p, c)
	if err != nil {
		return nil, err
	}
	v, err := c.ReadByte()
	if err != nil {
		return nil, err
	}
	r.ServerVersion = Version(v)
	n, err := c.ReadVInt()
	if err != nil {
		return nil, err
	}
	if err = c.require(2 * n); err != nil {
		return nil, err
	}
	r.Ops = make([]uint16, n)
	for i := range r.Ops {
		if r.Ops[i], err = c.ReadUint16(); err != nil {
			return nil, err
		}
	}
	return r, nil
}
