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

package sasl

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"hash"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/pbkdf2"

	"hotrod/pkg/errors"
)

type scramHash struct {
	name string
	h    func() hash.Hash
}

func (s scramHash) factory() Factory {
	return func(r *Registry) Mechanism {
		return &scram{r: r, hash: s}
	}
}

var scramHashes = []scramHash{
	{"SCRAM-SHA-1", sha1.New},
	{"SCRAM-SHA-256", sha256.New},
	{"SCRAM-SHA-384", sha512.New384},
	{"SCRAM-SHA-512", sha512.New},
}

// Hi is PBKDF2 with one output block: U1 = HMAC(password, salt || 0001),
// Ui = HMAC(password, Ui-1), result U1 ^ ... ^ Un.
func Hi(h func() hash.Hash, password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, h().Size(), h)
}

type saltedKeyID struct {
	hash       string
	password   string // digest of the password, not the password
	salt       string
	iterations int
}

// saltedKeyCache remembers SaltedPassword per (hash, password, salt,
// iterations) so repeated authentications skip Hi.
type saltedKeyCache struct {
	mu     sync.Mutex
	keys   map[saltedKeyID][]byte
	hits   uint64
	misses uint64
}

func newSaltedKeyCache() *saltedKeyCache {
	return &saltedKeyCache{keys: make(map[saltedKeyID][]byte)}
}

func (c *saltedKeyCache) get(s scramHash, password string, salt []byte, iterations int) []byte {
	digest := sha256.Sum256([]byte(password))
	id := saltedKeyID{hash: s.name, password: string(digest[:]), salt: string(salt), iterations: iterations}
	c.mu.Lock()
	key, ok := c.keys[id]
	c.mu.Unlock()
	if ok {
		atomic.AddUint64(&c.hits, 1)
		return key
	}
	atomic.AddUint64(&c.misses, 1)
	key = Hi(s.h, []byte(password), salt, iterations)
	c.mu.Lock()
	c.keys[id] = key
	c.mu.Unlock()
	return key
}

func (c *saltedKeyCache) stats() (hits, misses uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses)
}

type scramStage uint8

const (
	scramInitial scramStage = iota
	scramFirstSent
	scramChallenged
	scramFinalSent
	scramVerified
)

// scram implements RFC 5802 without channel binding.
type scram struct {
	r     *Registry
	hash  scramHash
	stage scramStage

	gs2             string
	cnonce          string
	clientFirstBare string
	serverFirst     string
	nonce           string
	salt            []byte
	iterations      int
	serverSignature []byte
}

func (m *scram) Name() string {
	return m.hash.name
}

func (m *scram) Response(cred *Credentials) ([]byte, error) {
	switch m.stage {
	case scramInitial:
		return m.clientFirst(cred)
	case scramChallenged:
		return m.clientFinal(cred)
	case scramVerified:
		return []byte{}, nil
	}
	return nil, errors.Newf(errors.KindProtocol, "%s response out of order (stage %d)", m.hash.name, m.stage)
}

func (m *scram) clientFirst(cred *Credentials) ([]byte, error) {
	user, _, err := prepare(cred)
	if err != nil {
		return nil, err
	}
	if m.cnonce, err = m.r.newNonce(); err != nil {
		return nil, errors.Wrap(errors.KindConfig, err, "client nonce")
	}
	m.gs2 = "n,,"
	if cred.Authzid != "" {
		m.gs2 = "n,a=" + escapeSaslName(cred.Authzid) + ","
	}
	m.clientFirstBare = "n=" + escapeSaslName(user) + ",r=" + m.cnonce
	m.stage = scramFirstSent
	return []byte(m.gs2 + m.clientFirstBare), nil
}

func (m *scram) clientFinal(cred *Credentials) ([]byte, error) {
	_, pass, err := prepare(cred)
	if err != nil {
		return nil, err
	}
	salted := m.r.keys.get(m.hash, pass, m.salt, m.iterations)
	clientKey := m.hmac(salted, []byte("Client Key"))
	serverKey := m.hmac(salted, []byte("Server Key"))
	h := m.hash.h()
	h.Write(clientKey)
	storedKey := h.Sum(nil)

	withoutProof := "c=" + base64.StdEncoding.EncodeToString([]byte(m.gs2)) + ",r=" + m.nonce
	authMessage := []byte(m.clientFirstBare + "," + m.serverFirst + "," + withoutProof)
	signature := m.hmac(storedKey, authMessage)
	proof := make([]byte, len(clientKey))
	for i := range proof {
		proof[i] = clientKey[i] ^ signature[i]
	}
	m.serverSignature = m.hmac(serverKey, authMessage)
	m.stage = scramFinalSent
	return []byte(withoutProof + ",p=" + base64.StdEncoding.EncodeToString(proof)), nil
}

func (m *scram) Challenge(b []byte) error {
	switch m.stage {
	case scramFirstSent:
		return m.serverFirstMessage(string(b))
	case scramFinalSent:
		return m.serverFinalMessage(string(b))
	}
	return errors.Wrapf(errors.KindProtocol, ErrUnexpectedChallenge, "%s stage %d", m.hash.name, m.stage)
}

func (m *scram) serverFirstMessage(s string) error {
	attrs := scramAttributes(s)
	if e, ok := attrs["e"]; ok {
		return errors.Newf(errors.KindServer, "%s: %s", m.hash.name, e)
	}
	m.nonce = attrs["r"]
	if !strings.HasPrefix(m.nonce, m.cnonce) || len(m.nonce) == len(m.cnonce) {
		return errors.Newf(errors.KindProtocol, "%s: server nonce does not extend client nonce", m.hash.name)
	}
	salt, err := base64.StdEncoding.DecodeString(attrs["s"])
	if err != nil || len(salt) == 0 {
		return errors.Newf(errors.KindProtocol, "%s: invalid salt", m.hash.name)
	}
	iterations, err := strconv.Atoi(attrs["i"])
	if err != nil || iterations <= 0 {
		return errors.Newf(errors.KindProtocol, "%s: invalid iteration count %q", m.hash.name, attrs["i"])
	}
	m.salt = salt
	m.iterations = iterations
	m.serverFirst = s
	m.stage = scramChallenged
	return nil
}

func (m *scram) serverFinalMessage(s string) error {
	attrs := scramAttributes(s)
	if e, ok := attrs["e"]; ok {
		return errors.Newf(errors.KindServer, "%s: %s", m.hash.name, e)
	}
	v, err := base64.StdEncoding.DecodeString(attrs["v"])
	if err != nil || subtle.ConstantTimeCompare(v, m.serverSignature) != 1 {
		return ErrServerSignature
	}
	m.stage = scramVerified
	return nil
}

func (m *scram) hmac(key, msg []byte) []byte {
	mac := hmac.New(m.hash.h, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

func scramAttributes(s string) map[string]string {
	attrs := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		if len(part) < 2 || part[1] != '=' {
			continue
		}
		if _, dup := attrs[part[:1]]; !dup {
			attrs[part[:1]] = part[2:]
		}
	}
	return attrs
}

// escapeSaslName applies the saslname escaping of RFC 5802.
func escapeSaslName(s string) string {
	return strings.NewReplacer("=", "=3D", ",", "=2C").Replace(s)
}
