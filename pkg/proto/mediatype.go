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
	"encoding/json"
	"fmt"
	"sort"
)

const (
	MediaTypeTextPlain   = "text/plain"
	MediaTypeJSON        = "application/json"
	MediaTypeOctetStream = "application/octet-stream"
	MediaTypeUnknown     = "application/unknown"
)

const (
	kMediaTypeNone       byte = 0
	kMediaTypePredefined byte = 1
	kMediaTypeCustom     byte = 2
)

// ids the server assigns to well known media types
var predefinedMediaTypes = []string{
	1:  "application/javascript",
	2:  "application/x-jboss-marshalling",
	3:  MediaTypeJSON,
	4:  "application/x-java-object",
	5:  MediaTypeOctetStream,
	6:  "application/pdf",
	7:  "application/x-protostream",
	8:  "application/x-java-serialized-object",
	9:  "application/xml",
	10: "application/zip",
	11: "image/gif",
	12: "image/jpeg",
	13: "image/png",
	14: "text/css",
	15: "text/csv",
	16: MediaTypeTextPlain,
	17: "text/html",
	18: "application/x-infinispan-marshalling",
	19: MediaTypeUnknown,
	20: "application/x-protostuff",
	21: "application/x-kryo",
}

var predefinedMediaTypeIDs = func() map[string]int {
	m := make(map[string]int, len(predefinedMediaTypes))
	for id, name := range predefinedMediaTypes {
		if name != "" {
			m[name] = id
		}
	}
	return m
}()

type MediaType struct {
	Name   string
	Params map[string]string
}

func (m *MediaType) String() string {
	if m == nil {
		return "<none>"
	}
	if len(m.Params) == 0 {
		return m.Name
	}
	s := m.Name
	for _, k := range m.paramKeys() {
		s += "; " + k + "=" + m.Params[k]
	}
	return s
}

func (m *MediaType) paramKeys() []string {
	keys := make([]string, 0, len(m.Params))
	for k := range m.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteMediaType writes a media type descriptor. A well known name is sent
// as its predefined id, anything else as a custom string.
func WriteMediaType(c *ByteCursor, m *MediaType) {
	if m == nil || m.Name == "" {
		c.WriteByte(kMediaTypeNone)
		return
	}
	if id, ok := predefinedMediaTypeIDs[m.Name]; ok {
		c.WriteByte(kMediaTypePredefined)
		c.WriteUVarint32(uint32(id))
	} else {
		c.WriteByte(kMediaTypeCustom)
		c.WriteString(m.Name)
	}
	c.WriteUVarint32(uint32(len(m.Params)))
	for _, k := range m.paramKeys() {
		c.WriteString(k)
		c.WriteString(m.Params[k])
	}
}

func ReadMediaType(c *ByteCursor) (*MediaType, error) {
	kind, err := c.ReadByte()
	if err != nil {
		return nil, err
	}
	m := &MediaType{}
	switch kind {
	case kMediaTypeNone:
		return nil, nil
	case kMediaTypePredefined:
		id, err := c.ReadVInt()
		if err != nil {
			return nil, err
		}
		if id >= len(predefinedMediaTypes) || predefinedMediaTypes[id] == "" {
			return nil, NewProtocolErrorf("unknown predefined media type %d", id)
		}
		m.Name = predefinedMediaTypes[id]
	case kMediaTypeCustom:
		if m.Name, err = c.ReadString(); err != nil {
			return nil, err
		}
	default:
		return nil, ErrInvalidMediaType
	}
	n, err := c.ReadVInt()
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		k, err := c.ReadString()
		if err != nil {
			return nil, err
		}
		v, err := c.ReadString()
		if err != nil {
			return nil, err
		}
		if m.Params == nil {
			m.Params = make(map[string]string, n)
		}
		m.Params[k] = v
	}
	return m, nil
}

// Codec converts between caller values and the bytes stored under one
// media type.
type Codec interface {
	MediaType() *MediaType
	Encode(v interface{}) ([]byte, error)
	Decode(b []byte) (interface{}, error)
}

type (
	stringCodec struct{}
	jsonCodec   struct{}
	bytesCodec  struct{ name string }
)

func (stringCodec) MediaType() *MediaType {
	return &MediaType{Name: MediaTypeTextPlain}
}

func (stringCodec) Encode(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return []byte(t), nil
	case []byte:
		return t, nil
	case fmt.Stringer:
		return []byte(t.String()), nil
	}
	return nil, fmt.Errorf("text/plain cannot encode %T", v)
}

func (stringCodec) Decode(b []byte) (interface{}, error) {
	return string(b), nil
}

func (jsonCodec) MediaType() *MediaType {
	return &MediaType{Name: MediaTypeJSON}
}

func (jsonCodec) Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Decode(b []byte) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (c bytesCodec) MediaType() *MediaType {
	return &MediaType{Name: c.name}
}

func (c bytesCodec) Encode(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	}
	return nil, fmt.Errorf("%s cannot encode %T", c.name, v)
}

func (bytesCodec) Decode(b []byte) (interface{}, error) {
	return b, nil
}

var (
	StringCodec  Codec = stringCodec{}
	JSONCodec    Codec = jsonCodec{}
	BytesCodec   Codec = bytesCodec{name: MediaTypeOctetStream}
	UnknownCodec Codec = bytesCodec{name: MediaTypeUnknown}
)

// CodecFor returns the built-in codec registered for a media type name.
func CodecFor(name string) (Codec, bool) {
	switch name {
	case "", MediaTypeTextPlain:
		return StringCodec, true
	case MediaTypeJSON:
		return JSONCodec, true
	case MediaTypeOctetStream:
		return BytesCodec, true
	case MediaTypeUnknown:
		return UnknownCodec, true
	}
	return nil, false
}
