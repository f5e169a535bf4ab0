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
	"fmt"

	"hotrod/pkg/errors"
)

type Version uint8

const (
	Version22 = Version(22)
	Version25 = Version(25)
	Version29 = Version(29)
	Version30 = Version(30)

	DefaultVersion = Version30
)

var versionNames = map[string]Version{
	"2.2": Version22,
	"2.5": Version25,
	"2.9": Version29,
	"3.0": Version30,
}

func ParseVersion(s string) (Version, error) {
	if s == "" {
		return DefaultVersion, nil
	}
	if v, ok := versionNames[s]; ok {
		return v, nil
	}
	return 0, errors.Newf(errors.KindConfig, "unsupported protocol version %q", s)
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v/10, v%10)
}

func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Capability names one optional part of the protocol.
type Capability string

const (
	CapIterator          = Capability("iterator")
	CapMediaTypes        = Capability("media types")
	CapListenerInterests = Capability("listener interests")
)

// Each capability of a version is one of the interfaces below. A Protocol
// is assembled from one implementation per capability when it is built and
// never changes afterwards. A nil capability is not supported.
type (
	expiryCapability interface {
		writeExpiry(c *ByteCursor, lifespan, maxIdle Expiry) error
	}
	listenerCapability interface {
		writeAddListener(c *ByteCursor, req *AddListenerRequest)
	}
	interestCapability interface {
		writeInterests(c *ByteCursor, interests EventInterest)
	}
	iteratorCapability interface {
		writeStart(c *ByteCursor, req *IterationStartRequest)
		readNext(c *ByteCursor, withMetadata bool) (*IterationBatch, error)
	}
	mediaTypeCapability interface {
		writeMediaTypes(c *ByteCursor, key, value *MediaType)
		readMediaTypes(c *ByteCursor) (key, value *MediaType, err error)
	}
	saslCapability interface {
		writeAuth(c *ByteCursor, mech string, response []byte)
		readAuth(c *ByteCursor) (*AuthResponse, error)
		readMechList(c *ByteCursor) ([]string, error)
	}
	pingCapability interface {
		readPing(p *Protocol, c *ByteCursor) (*PingResponse, error)
	}
)

type ProtocolConfig struct {
	CacheName    string
	Intelligence Intelligence
	KeyCodec     Codec
	ValueCodec   Codec
}

func (c *ProtocolConfig) setDefault() {
	if c.Intelligence == 0 {
		c.Intelligence = IntelligenceHashAware
	}
	if c.KeyCodec == nil {
		c.KeyCodec = StringCodec
	}
	if c.ValueCodec == nil {
		c.ValueCodec = StringCodec
	}
}

type Protocol struct {
	version Version
	cfg     ProtocolConfig

	expiry   expiryCapability
	listener listenerCapability
	interest interestCapability
	iterator iteratorCapability
	media    mediaTypeCapability
	sasl     saslCapability
	ping     pingCapability
}

// NewProtocol composes the capabilities of version v.
func NewProtocol(v Version, cfg ProtocolConfig) (*Protocol, error) {
	cfg.setDefault()
	if cfg.Intelligence < IntelligenceBasic || cfg.Intelligence > IntelligenceHashAware {
		return nil, errors.Newf(errors.KindConfig, "invalid client intelligence %d", cfg.Intelligence)
	}
	p := &Protocol{
		version:  v,
		cfg:      cfg,
		expiry:   unitExpiry{},
		listener: listenerRegistration{},
		sasl:     saslOps{},
	}
	switch v {
	case Version22:
		p.ping = emptyPing{}
	case Version25:
		p.iterator = segmentIterator{}
		p.ping = emptyPing{}
	case Version29:
		p.iterator = segmentIterator{}
		p.media = mediaTypeDescriptors{}
		p.interest = vintInterests{}
		p.ping = mediaTypePing{}
	case Version30:
		p.iterator = segmentIterator{}
		p.media = mediaTypeDescriptors{}
		p.interest = vintInterests{}
		p.ping = serverInfoPing{}
	default:
		return nil, errors.Newf(errors.KindConfig, "unsupported protocol version %d", uint8(v))
	}
	return p, nil
}

func (p *Protocol) Version() Version {
	return p.version
}

func (p *Protocol) Config() ProtocolConfig {
	return p.cfg
}

func (p *Protocol) Supports(capability Capability) bool {
	switch capability {
	case CapIterator:
		return p.iterator != nil
	case CapMediaTypes:
		return p.media != nil
	case CapListenerInterests:
		return p.interest != nil
	}
	return false
}

func (p *Protocol) notSupported(capability Capability) error {
	return errors.Newf(errors.KindConfig, "%s not supported by protocol %s", capability, p.version)
}

func (p *Protocol) EncodeKey(v interface{}) ([]byte, error) {
	b, err := p.cfg.KeyCodec.Encode(v)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, err, "encode key")
	}
	return b, nil
}

func (p *Protocol) EncodeValue(v interface{}) ([]byte, error) {
	b, err := p.cfg.ValueCodec.Encode(v)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, err, "encode value")
	}
	return b, nil
}

func (p *Protocol) DecodeKey(b []byte) (interface{}, error) {
	return p.cfg.KeyCodec.Decode(b)
}

func (p *Protocol) DecodeValue(b []byte) (interface{}, error) {
	return p.cfg.ValueCodec.Decode(b)
}

type unitExpiry struct{}

func (unitExpiry) writeExpiry(c *ByteCursor, lifespan, maxIdle Expiry) error {
	return WriteExpiry(c, lifespan, maxIdle)
}

type vintInterests struct{}

func (vintInterests) writeInterests(c *ByteCursor, interests EventInterest) {
	c.WriteUVarint32(uint32(interests))
}

type mediaTypeDescriptors struct{}

func (mediaTypeDescriptors) writeMediaTypes(c *ByteCursor, key, value *MediaType) {
	WriteMediaType(c, key)
	WriteMediaType(c, value)
}

func (mediaTypeDescriptors) readMediaTypes(c *ByteCursor) (key, value *MediaType, err error) {
	if key, err = ReadMediaType(c); err != nil {
		return
	}
	value, err = ReadMediaType(c)
	return
}
