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

/*
Package client provides the cache operations of a Hot Rod client.

Errors carry one of the kinds of hotrod/pkg/errors:

  - transport: dial failures, broken connections, request timeouts, ErrClosed
  - protocol: malformed or unexpected frames, the connection is torn down
  - server: error frames and unexpected statuses sent by the server
  - configuration: invalid Config, unsupported protocol capability, SASL mechanism
  - listener: listener registration failures

A write whose condition did not hold is not an error: the returned Result
has Executed set to false.
*/
package client

import (
	"context"

	"hotrod/internal/cli"
	"hotrod/pkg/proto"
)

// Entry is a decoded cache entry. Metadata is set by the operations that
// ask the server for it.
type Entry struct {
	Key      interface{}
	Value    interface{}
	Metadata *proto.Metadata
}

// Result is the outcome of a write. Previous holds the decoded previous
// value when WithPrevious was given and the server had one.
type Result struct {
	Status   proto.OpStatus
	Executed bool
	Previous interface{}
}

type EventHandler = cli.EventHandler

type IClient interface {
	Get(ctx context.Context, key interface{}, opts ...IOption) (interface{}, error)
	GetWithMetadata(ctx context.Context, key interface{}, opts ...IOption) (*Entry, error)
	ContainsKey(ctx context.Context, key interface{}, opts ...IOption) (bool, error)
	Put(ctx context.Context, key interface{}, value interface{}, opts ...IOption) (*Result, error)
	PutIfAbsent(ctx context.Context, key interface{}, value interface{}, opts ...IOption) (*Result, error)
	Replace(ctx context.Context, key interface{}, value interface{}, opts ...IOption) (*Result, error)
	ReplaceWithVersion(ctx context.Context, key interface{}, value interface{}, version int64, opts ...IOption) (*Result, error)
	Remove(ctx context.Context, key interface{}, opts ...IOption) (*Result, error)
	RemoveWithVersion(ctx context.Context, key interface{}, version int64, opts ...IOption) (*Result, error)
	GetAll(ctx context.Context, keys []interface{}, opts ...IOption) ([]*Entry, error)
	PutAll(ctx context.Context, entries []*Entry, opts ...IOption) error
	Clear(ctx context.Context, opts ...IOption) error
	Size(ctx context.Context, opts ...IOption) (int64, error)
	Stats(ctx context.Context, opts ...IOption) (map[string]string, error)
	Ping(ctx context.Context, opts ...IOption) (*proto.PingResponse, error)

	AddListener(ctx context.Context, handlers map[proto.EventType]EventHandler, opts ...IOption) (*Listener, error)
	RemoveListener(ctx context.Context, l *Listener) error
	Iterator(ctx context.Context, batchSize int, opts IteratorOptions) (*Iterator, error)

	SwitchToCluster(name string) error
	SwitchToDefaultCluster()
	ActiveCluster() string

	Close()
}
