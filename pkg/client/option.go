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

package client

import (
	"time"

	"hotrod/pkg/proto"
)

type optionData struct {
	lifespan     proto.Expiry
	maxIdle      proto.Expiry
	previous     bool
	listenerID   []byte
	interests    proto.EventInterest
	includeState bool
	rawData      bool
	filter       factory
	converter    factory
	retry        bool
}

type factory struct {
	name   string
	params [][]byte
}

type IOption func(data interface{})

// WithLifespan sets the entry lifespan. Zero keeps the server default and a
// negative duration means immortal.
func WithLifespan(d time.Duration) IOption {
	return func(i interface{}) {
		if data, ok := i.(*optionData); ok {
			data.lifespan = proto.ExpiryFromDuration(d)
		}
	}
}

// WithMaxIdle sets the longest time the entry may stay unused.
func WithMaxIdle(d time.Duration) IOption {
	return func(i interface{}) {
		if data, ok := i.(*optionData); ok {
			data.maxIdle = proto.ExpiryFromDuration(d)
		}
	}
}

// WithPrevious asks the server to return the value replaced or removed by a
// write.
func WithPrevious() IOption {
	return func(i interface{}) {
		if data, ok := i.(*optionData); ok {
			data.previous = true
		}
	}
}

func WithListenerID(id []byte) IOption {
	return func(i interface{}) {
		if data, ok := i.(*optionData); ok {
			data.listenerID = id
		}
	}
}

func WithInterests(interests proto.EventInterest) IOption {
	return func(i interface{}) {
		if data, ok := i.(*optionData); ok {
			data.interests = interests
		}
	}
}

// WithIncludeState replays the existing entries as created events before
// AddListener returns.
func WithIncludeState() IOption {
	return func(i interface{}) {
		if data, ok := i.(*optionData); ok {
			data.includeState = true
		}
	}
}

// WithFilterFactory names a server side filter for the listener events.
func WithFilterFactory(name string, params ...[]byte) IOption {
	return func(i interface{}) {
		if data, ok := i.(*optionData); ok {
			data.filter = factory{name: name, params: params}
		}
	}
}

// WithConverterFactory names a server side converter. Converted events
// arrive as custom events.
func WithConverterFactory(name string, params ...[]byte) IOption {
	return func(i interface{}) {
		if data, ok := i.(*optionData); ok {
			data.converter = factory{name: name, params: params}
		}
	}
}

func WithRawData() IOption {
	return func(i interface{}) {
		if data, ok := i.(*optionData); ok {
			data.rawData = true
		}
	}
}

// WithRetry marks an operation as safe to send again after a transport
// failure.
func WithRetry() IOption {
	return func(i interface{}) {
		if data, ok := i.(*optionData); ok {
			data.retry = true
		}
	}
}

func newOptionData(opts ...IOption) *optionData {
	data := &optionData{
		lifespan: proto.DefaultExpiry,
		maxIdle:  proto.DefaultExpiry,
	}
	for _, op := range opts {
		op(data)
	}
	return data
}

func (d *optionData) writeOptions() *proto.WriteOptions {
	return &proto.WriteOptions{
		Lifespan: d.lifespan,
		MaxIdle:  d.maxIdle,
		Previous: d.previous,
	}
}
