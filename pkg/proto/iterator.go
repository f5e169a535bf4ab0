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

type IterationStartRequest struct {
	// Segments is a bit set of segments to iterate, nil for all
	Segments      []byte
	FilterFactory string
	FilterParams  [][]byte
	BatchSize     int
	Metadata      bool
}

type IteratorEntry struct {
	Key      []byte
	Value    []byte
	Metadata *Metadata
}

type IterationBatch struct {
	FinishedSegments []byte
	Entries          []IteratorEntry
}

// Done reports whether the server has no more entries.
func (b *IterationBatch) Done() bool {
	return len(b.Entries) == 0
}

type segmentIterator struct{}

func (segmentIterator) writeStart(c *ByteCursor, req *IterationStartRequest) {
	c.WriteOptionalBytes(req.Segments)
	if req.FilterFactory == "" {
		c.WriteSVarint32(-1)
	} else {
		c.WriteOptionalBytes([]byte(req.FilterFactory))
		c.WriteByte(byte(len(req.FilterParams)))
		for _, p := range req.FilterParams {
			c.WriteBytes(p)
		}
	}
	c.WriteUVarint32(uint32(req.BatchSize))
	writeBool(c, req.Metadata)
}

func (segmentIterator) readNext(c *ByteCursor, withMetadata bool) (*IterationBatch, error) {
	b := &IterationBatch{}
	var err error
	if b.FinishedSegments, err = c.ReadBytes(); err != nil {
		return nil, err
	}
	n, err := c.ReadVInt()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return b, nil
	}
	projections, err := c.ReadVInt()
	if err != nil {
		return nil, err
	}
	if err = c.require(n); err != nil {
		return nil, err
	}
	b.Entries = make([]IteratorEntry, 0, n)
	for i := 0; i < n; i++ {
		var e IteratorEntry
		if withMetadata {
			if e.Metadata, err = ReadMetadata(c); err != nil {
				return nil, err
			}
		}
		if e.Key, err = c.ReadBytes(); err != nil {
			return nil, err
		}
		// only the first projection is the value
		for j := 0; j < projections; j++ {
			v, err := c.ReadBytes()
			if err != nil {
				return nil, err
			}
			if j == 0 {
				e.Value = v
			}
		}
		b.Entries = append(b.Entries, e)
	}
	return b, nil
}

func (p *Protocol) EncodeIterationStart(h *RequestHeader, req *IterationStartRequest) ([]byte, error) {
	if p.iterator == nil {
		return nil, p.notSupported(CapIterator)
	}
	c := p.newFrame(h)
	p.iterator.writeStart(c, req)
	return c.Bytes(), nil
}

// EncodeIterationID encodes iteration next and iteration end.
func (p *Protocol) EncodeIterationID(h *RequestHeader, iteratorID string) ([]byte, error) {
	if p.iterator == nil {
		return nil, p.notSupported(CapIterator)
	}
	c := p.newFrame(h)
	c.WriteString(iteratorID)
	return c.Bytes(), nil
}

func DecodeIterationStart(c *ByteCursor, h *ResponseHeader) (interface{}, error) {
	return c.ReadString()
}

func (p *Protocol) IterationNextDecoder(withMetadata bool) Decoder {
	return func(c *ByteCursor, h *ResponseHeader) (interface{}, error) {
		if !h.Status.IsSuccess() {
			return nil, &StatusError{Op: h.Op, Status: h.Status}
		}
		return p.iterator.readNext(c, withMetadata)
	}
}

func DecodeIterationEnd(c *ByteCursor, h *ResponseHeader) (interface{}, error) {
	return h.Status.IsSuccess(), nil
}

// ReadIterationStart and WriteIterationBatch serve in-process fakes.
func ReadIterationStart(c *ByteCursor) (*IterationStartRequest, error) {
	req := &IterationStartRequest{}
	var err error
	if req.Segments, err = c.ReadOptionalBytes(); err != nil {
		return nil, err
	}
	factory, err := c.ReadOptionalBytes()
	if err != nil {
		return nil, err
	}
	if factory != nil {
		req.FilterFactory = string(factory)
		n, err := c.ReadByte()
		if err != nil {
			return nil, err
		}
		req.FilterParams = make([][]byte, n)
		for i := range req.FilterParams {
			if req.FilterParams[i], err = c.ReadBytes(); err != nil {
				return nil, err
			}
		}
	}
	if req.BatchSize, err = c.ReadVInt(); err != nil {
		return nil, err
	}
	if req.Metadata, err = c.ReadBool(); err != nil {
		return nil, err
	}
	return req, nil
}

func WriteIterationBatch(c *ByteCursor, b *IterationBatch, withMetadata bool) {
	c.WriteBytes(b.FinishedSegments)
	c.WriteUVarint32(uint32(len(b.Entries)))
	if len(b.Entries) == 0 {
		return
	}
	c.WriteUVarint32(1)
	for _, e := range b.Entries {
		if withMetadata {
			m := e.Metadata
			if m == nil {
				m = &Metadata{Lifespan: -1, MaxIdle: -1}
			}
			WriteMetadata(c, m)
		}
		c.WriteBytes(e.Key)
		c.WriteBytes(e.Value)
	}
}
