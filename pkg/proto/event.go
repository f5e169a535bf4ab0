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
	"strings"
)

type EventType uint8

const (
	EventCreated EventType = iota + 1
	EventModified
	EventRemoved
	EventExpired
	EventCustom
)

var eventTypeNames = map[EventType]string{
	EventCreated:  "create",
	EventModified: "modify",
	EventRemoved:  "remove",
	EventExpired:  "expiry",
	EventCustom:   "custom",
}

func (t EventType) String() string {
	return eventTypeNames[t]
}

func ParseEventType(s string) (EventType, bool) {
	for t, name := range eventTypeNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

// EventInterest is the bit set of event kinds a listener subscribes to.
type EventInterest uint32

const (
	InterestCreated  = EventInterest(0x01)
	InterestModified = EventInterest(0x02)
	InterestRemoved  = EventInterest(0x04)
	InterestExpired  = EventInterest(0x08)
	InterestAll      = InterestCreated | InterestModified | InterestRemoved | InterestExpired
)

var eventTypes = map[OpCode]EventType{
	OpCodeCacheEntryCreated:  EventCreated,
	OpCodeCacheEntryModified: EventModified,
	OpCodeCacheEntryRemoved:  EventRemoved,
	OpCodeCacheEntryExpired:  EventExpired,
}

// Event is a server pushed cache event.
type Event struct {
	ListenerID []byte
	Op         OpCode
	Type       EventType
	Key        []byte
	Version    int64
	Custom     bool
	Retried    bool
	Payload    []byte

	// Data is Payload decoded with the value codec. Custom payloads
	// carrying key, value and previous value have them split out.
	Data     interface{}
	Value    interface{}
	Previous interface{}
	DataKey  interface{}
}

const kKeyValueWithPreviousMarker = "KeyValueWithPrevious"

// ReadEvent decodes the body of an event frame.
func ReadEvent(c *ByteCursor, h *ResponseHeader) (*Event, error) {
	typ, ok := eventTypes[h.Op]
	if !ok {
		return nil, NewProtocolErrorf("unknown event opcode %#x", uint8(h.Op))
	}
	e := &Event{Op: h.Op, Type: typ}
	var err error
	if e.ListenerID, err = c.ReadBytes(); err != nil {
		return nil, err
	}
	if e.Custom, err = c.ReadBool(); err != nil {
		return nil, err
	}
	if e.Retried, err = c.ReadBool(); err != nil {
		return nil, err
	}
	if e.Custom {
		e.Type = EventCustom
		if e.Payload, err = c.ReadBytes(); err != nil {
			return nil, err
		}
		return e, nil
	}
	if e.Key, err = c.ReadBytes(); err != nil {
		return nil, err
	}
	if typ == EventCreated || typ == EventModified {
		if e.Version, err = c.ReadInt64(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func WriteEvent(c *ByteCursor, e *Event) {
	c.WriteBytes(e.ListenerID)
	writeBool(c, e.Custom)
	writeBool(c, e.Retried)
	if e.Custom {
		c.WriteBytes(e.Payload)
		return
	}
	c.WriteBytes(e.Key)
	if e.Op == OpCodeCacheEntryCreated || e.Op == OpCodeCacheEntryModified {
		c.WriteInt64(e.Version)
	}
}

func writeBool(c *ByteCursor, b bool) {
	if b {
		c.WriteByte(1)
	} else {
		c.WriteByte(0)
	}
}

// DecodeCustom decodes the custom payload with codec. A JSON object whose
// "_type" ends in KeyValueWithPrevious is split into key, value and
// previous value.
func (e *Event) DecodeCustom(codec Codec) error {
	if !e.Custom {
		return nil
	}
	data, err := codec.Decode(e.Payload)
	if err != nil {
		return err
	}
	e.Data = data
	obj, ok := data.(map[string]interface{})
	if !ok {
		if s, isString := data.(string); isString && strings.HasPrefix(s, "{") {
			if json.Unmarshal([]byte(s), &obj) != nil {
				return nil
			}
		} else {
			return nil
		}
	}
	typ, _ := obj["_type"].(string)
	if !strings.HasSuffix(typ, kKeyValueWithPreviousMarker) {
		return nil
	}
	e.DataKey = obj["key"]
	e.Value = obj["value"]
	e.Previous = obj["prev"]
	return nil
}

type AddListenerRequest struct {
	ListenerID       []byte
	IncludeState     bool
	FilterFactory    string
	FilterParams     [][]byte
	ConverterFactory string
	ConverterParams  [][]byte
	RawData          bool
	Interests        EventInterest
}

type listenerRegistration struct{}

func (listenerRegistration) writeAddListener(c *ByteCursor, req *AddListenerRequest) {
	c.WriteBytes(req.ListenerID)
	writeBool(c, req.IncludeState)
	writeFactory(c, req.FilterFactory, req.FilterParams)
	writeFactory(c, req.ConverterFactory, req.ConverterParams)
	writeBool(c, req.RawData)
}

func writeFactory(c *ByteCursor, name string, params [][]byte) {
	c.WriteString(name)
	if name == "" {
		return
	}
	c.WriteByte(byte(len(params)))
	for _, p := range params {
		c.WriteBytes(p)
	}
}

// ReadAddListener decodes an add listener body written for version v.
func ReadAddListener(c *ByteCursor, v Version) (*AddListenerRequest, error) {
	req := &AddListenerRequest{Interests: InterestAll}
	var err error
	if req.ListenerID, err = c.ReadBytes(); err != nil {
		return nil, err
	}
	if req.IncludeState, err = c.ReadBool(); err != nil {
		return nil, err
	}
	if req.FilterFactory, req.FilterParams, err = readFactory(c); err != nil {
		return nil, err
	}
	if req.ConverterFactory, req.ConverterParams, err = readFactory(c); err != nil {
		return nil, err
	}
	if req.RawData, err = c.ReadBool(); err != nil {
		return nil, err
	}
	if v >= Version29 {
		interests, err := c.ReadUVarint32()
		if err != nil {
			return nil, err
		}
		req.Interests = EventInterest(interests)
	}
	return req, nil
}

func readFactory(c *ByteCursor) (string, [][]byte, error) {
	name, err := c.ReadString()
	if err != nil || name == "" {
		return name, nil, err
	}
	n, err := c.ReadByte()
	if err != nil {
		return "", nil, err
	}
	params := make([][]byte, n)
	for i := range params {
		if params[i], err = c.ReadBytes(); err != nil {
			return "", nil, err
		}
	}
	return name, params, nil
}

// EncodeAddListener encodes a listener registration. Interests are only
// sent by versions that support them; older servers deliver every kind.
func (p *Protocol) EncodeAddListener(h *RequestHeader, req *AddListenerRequest) []byte {
	c := p.newFrame(h)
	p.listener.writeAddListener(c, req)
	if p.interest != nil {
		interests := req.Interests
		if interests == 0 {
			interests = InterestAll
		}
		p.interest.writeInterests(c, interests)
	}
	return c.Bytes()
}

func (p *Protocol) EncodeRemoveListener(h *RequestHeader, listenerID []byte) []byte {
	c := p.newFrame(h)
	c.WriteBytes(listenerID)
	return c.Bytes()
}
