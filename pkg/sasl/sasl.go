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

// Package sasl implements the client side of the SASL mechanisms a Hot Rod
// server offers. Each mechanism is a small state machine: Response produces
// the next token to send, Challenge absorbs the server's reply.
package sasl

import (
	"crypto/rand"
	"encoding/base64"
	"sort"
	"strings"
	"sync"

	"hotrod/pkg/errors"
)

type Credentials struct {
	Username string
	Password string
	// Authzid is the identity to act as, usually empty
	Authzid string
	// Token is the bearer token for OAUTHBEARER
	Token string
	Realm string
	// ServerName goes into the DIGEST-MD5 digest-uri
	ServerName string
}

type Mechanism interface {
	Name() string
	Response(cred *Credentials) ([]byte, error)
	Challenge(b []byte) error
}

type Factory func(r *Registry) Mechanism

var (
	ErrUnsupportedMechanism = errors.New(errors.KindConfig, "unsupported SASL mechanism")
	ErrServerSignature      = errors.New(errors.KindProtocol, "SASL server signature mismatch")
	ErrUnexpectedChallenge  = errors.New(errors.KindProtocol, "unexpected SASL challenge")
)

// Registry maps mechanism names to constructors and owns state shared by
// the mechanisms it creates, such as the SCRAM salted password cache.
// A Registry is created per client.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	// preference order when the caller does not name a mechanism
	priority []string

	keys  *saltedKeyCache
	nonce func() (string, error)
}

func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		keys:      newSaltedKeyCache(),
		nonce:     randomNonce,
	}
	r.Register("PLAIN", newPlain)
	r.Register("EXTERNAL", newExternal)
	r.Register("OAUTHBEARER", newOAuthBearer)
	r.Register("DIGEST-MD5", newDigestMD5)
	for _, s := range scramHashes {
		r.Register(s.name, s.factory())
	}
	r.priority = []string{
		"SCRAM-SHA-512", "SCRAM-SHA-384", "SCRAM-SHA-256", "SCRAM-SHA-1",
		"DIGEST-MD5", "OAUTHBEARER", "PLAIN", "EXTERNAL",
	}
	return r
}

func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	r.factories[strings.ToUpper(name)] = f
	r.mu.Unlock()
}

// SetNonceSource replaces the client nonce generator.
func (r *Registry) SetNonceSource(f func() (string, error)) {
	r.mu.Lock()
	r.nonce = f
	r.mu.Unlock()
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) New(name string) (Mechanism, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToUpper(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(errors.KindConfig, ErrUnsupportedMechanism, "%s", name)
	}
	return f(r), nil
}

// Select picks the mechanism to authenticate with. A preferred name must
// be registered and advertised. Without one, the strongest registered
// mechanism the server advertises wins.
func (r *Registry) Select(preferred string, advertised []string) (Mechanism, error) {
	offered := make(map[string]bool, len(advertised))
	for _, a := range advertised {
		offered[strings.ToUpper(a)] = true
	}
	if preferred != "" {
		name := strings.ToUpper(preferred)
		if !offered[name] {
			return nil, errors.Wrapf(errors.KindConfig, ErrUnsupportedMechanism,
				"%s not offered by server (offered: %s)", name, strings.Join(advertised, ","))
		}
		return r.New(name)
	}
	r.mu.RLock()
	priority := r.priority
	r.mu.RUnlock()
	for _, name := range priority {
		if offered[name] {
			if m, err := r.New(name); err == nil {
				return m, nil
			}
		}
	}
	for _, a := range advertised {
		if m, err := r.New(a); err == nil {
			return m, nil
		}
	}
	return nil, errors.Wrapf(errors.KindConfig, ErrUnsupportedMechanism,
		"none of %s", strings.Join(advertised, ","))
}

func (r *Registry) newNonce() (string, error) {
	r.mu.RLock()
	f := r.nonce
	r.mu.RUnlock()
	return f()
}

func randomNonce() (string, error) {
	var b [18]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(b[:]), nil
}
