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

package mock

import (
	"sort"
	"sync"
	"time"

	"hotrod/pkg/proto"
)

type entry struct {
	value    []byte
	version  int64
	created  int64
	lifespan proto.Expiry
	maxIdle  proto.Expiry
}

// Store is the in-memory cache behind a mock Server. It keeps expiry
// settings for metadata replies but never expires anything.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	version int64
}

func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

func (s *Store) nextVersion() int64 {
	s.version++
	return s.version
}

func (s *Store) Get(key []byte) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[string(key)]
	if !ok {
		return nil, false
	}
	return e.value, true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) metadata(key []byte) (*proto.Metadata, []byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[string(key)]
	if !ok {
		return nil, nil, false
	}
	m := &proto.Metadata{Created: -1, Lifespan: -1, LastUsed: -1, MaxIdle: -1, Version: e.version}
	if !e.lifespan.Unit.IsSentinel() {
		m.Created = e.created
		m.Lifespan = int(e.lifespan.Duration() / time.Second)
	}
	if !e.maxIdle.Unit.IsSentinel() {
		m.LastUsed = time.Now().UnixMilli()
		m.MaxIdle = int(e.maxIdle.Duration() / time.Second)
	}
	return m, e.value, true
}

// put stores value and returns the previous value, if any, and the new
// version.
func (s *Store) put(key, value []byte, lifespan, maxIdle proto.Expiry) (prev []byte, existed bool, version int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[string(key)]; ok {
		prev, existed = e.value, true
	}
	version = s.nextVersion()
	s.entries[string(key)] = &entry{
		value:    value,
		version:  version,
		created:  time.Now().UnixMilli(),
		lifespan: lifespan,
		maxIdle:  maxIdle,
	}
	return
}

// Put is the unconditional write used to seed a store.
func (s *Store) Put(key, value []byte) int64 {
	_, _, v := s.put(key, value, proto.DefaultExpiry, proto.DefaultExpiry)
	return v
}

func (s *Store) versionOf(key []byte) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[string(key)]; ok {
		return e.version, true
	}
	return 0, false
}

func (s *Store) remove(key []byte) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[string(key)]
	if !ok {
		return nil, false
	}
	delete(s.entries, string(key))
	return e.value, true
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
}

// snapshot returns all entries sorted by key.
func (s *Store) snapshot() []proto.IteratorEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]proto.IteratorEntry, 0, len(keys))
	for _, k := range keys {
		e := s.entries[k]
		out = append(out, proto.IteratorEntry{
			Key:      []byte(k),
			Value:    e.value,
			Metadata: &proto.Metadata{Created: -1, Lifespan: -1, LastUsed: -1, MaxIdle: -1, Version: e.version},
		})
	}
	return out
}
