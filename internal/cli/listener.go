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

package cli

import (
	"github.com/golang/glog"
	uuid "github.com/satori/go.uuid"

	"hotrod/pkg/proto"
)

// EventHandler runs on the processing loop of the connection that received
// the event and must not wait for that connection.
type EventHandler func(e *proto.Event)

// Registration holds the callbacks of one listener id by event type.
type Registration struct {
	id       []byte
	handlers map[proto.EventType][]EventHandler
}

func NewRegistration(id []byte) *Registration {
	return &Registration{id: id, handlers: make(map[proto.EventType][]EventHandler)}
}

func (r *Registration) ID() []byte {
	return r.id
}

func (r *Registration) On(typ proto.EventType, h EventHandler) *Registration {
	r.handlers[typ] = append(r.handlers[typ], h)
	return r
}

// ListenerRegistry maps listener ids to registrations. It belongs to one
// connection and is only touched by its processing loop.
type ListenerRegistry struct {
	entries map[string][]*Registration
}

func NewListenerRegistry() *ListenerRegistry {
	return &ListenerRegistry{entries: make(map[string][]*Registration)}
}

// NewListenerID returns a random 16 byte id.
func NewListenerID() []byte {
	return uuid.NewV4().Bytes()
}

func (l *ListenerRegistry) Len() int {
	return len(l.entries)
}

func (l *ListenerRegistry) Has(id []byte) bool {
	_, ok := l.entries[string(id)]
	return ok
}

// Add appends r to the registrations sharing its id.
func (l *ListenerRegistry) Add(r *Registration) {
	key := string(r.id)
	l.entries[key] = append(l.entries[key], r)
}

// Detach removes r alone, leaving other registrations of the same id.
func (l *ListenerRegistry) Detach(r *Registration) {
	key := string(r.id)
	regs := l.entries[key]
	for i, cur := range regs {
		if cur != r {
			continue
		}
		regs = append(regs[:i:i], regs[i+1:]...)
		break
	}
	if len(regs) == 0 {
		delete(l.entries, key)
		return
	}
	l.entries[key] = regs
}

// Remove detaches every callback of id. Removing an unknown id is a no-op.
func (l *ListenerRegistry) Remove(id []byte) bool {
	key := string(id)
	if _, ok := l.entries[key]; !ok {
		return false
	}
	delete(l.entries, key)
	return true
}

func (l *ListenerRegistry) Clear() {
	l.entries = make(map[string][]*Registration)
}

// Dispatch invokes the callbacks registered for the event's listener id
// and type, in registration order. Events for unknown ids are dropped.
func (l *ListenerRegistry) Dispatch(e *proto.Event) int {
	regs, ok := l.entries[string(e.ListenerID)]
	if !ok {
		if glog.V(2) {
			glog.Infof("drop %s event for unknown listener %x", e.Type, e.ListenerID)
		}
		return 0
	}
	n := 0
	for _, r := range regs {
		for _, h := range r.handlers[e.Type] {
			h(e)
			n++
		}
	}
	return n
}
