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
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"hotrod/pkg/errors"
)

const (
	kDigestService    = "hotrod"
	kDigestNonceCount = "00000001"
	kDigestQop        = "auth"
)

type digestStage uint8

const (
	digestInitial digestStage = iota
	digestChallenged
	digestResponded
	digestVerified
)

// digestMD5 implements RFC 2831 with qop=auth.
type digestMD5 struct {
	r       *Registry
	stage   digestStage
	service string

	realm   string
	nonce   string
	charset string
	cnonce  string
	uri     string
	a1      []byte
}

func newDigestMD5(r *Registry) Mechanism {
	return &digestMD5{r: r, service: kDigestService}
}

func (m *digestMD5) Name() string {
	return "DIGEST-MD5"
}

func (m *digestMD5) Challenge(b []byte) error {
	switch m.stage {
	case digestInitial:
		d, err := ParseDirectives(string(b))
		if err != nil {
			return err
		}
		if m.nonce = d["nonce"]; m.nonce == "" {
			return errors.New(errors.KindProtocol, "DIGEST-MD5 challenge without nonce")
		}
		if qop, ok := d["qop"]; ok && !containsToken(qop, kDigestQop) {
			return errors.Newf(errors.KindConfig, "DIGEST-MD5 qop %q not supported", qop)
		}
		m.realm = d["realm"]
		m.charset = d["charset"]
		m.stage = digestChallenged
		return nil
	case digestResponded:
		d, err := ParseDirectives(string(b))
		if err != nil {
			return err
		}
		want := m.responseValue(":" + m.uri)
		if subtle.ConstantTimeCompare([]byte(d["rspauth"]), []byte(want)) != 1 {
			return ErrServerSignature
		}
		m.stage = digestVerified
		return nil
	}
	return errors.Wrapf(errors.KindProtocol, ErrUnexpectedChallenge, "DIGEST-MD5 stage %d", m.stage)
}

// Response sends nothing until the server challenged, then the digest
// response, then an empty token after rspauth.
func (m *digestMD5) Response(cred *Credentials) ([]byte, error) {
	switch m.stage {
	case digestInitial, digestVerified:
		return []byte{}, nil
	case digestResponded:
		return nil, errors.New(errors.KindProtocol, "DIGEST-MD5 response sent twice")
	}
	user, pass, err := prepare(cred)
	if err != nil {
		return nil, err
	}
	if m.cnonce, err = m.r.newNonce(); err != nil {
		return nil, errors.Wrap(errors.KindConfig, err, "client nonce")
	}
	realm := m.realm
	if cred.Realm != "" {
		realm = cred.Realm
	}
	server := cred.ServerName
	if server == "" {
		server = "localhost"
	}
	m.uri = m.service + "/" + server

	userHash := md5.Sum([]byte(user + ":" + realm + ":" + pass))
	a1 := append(userHash[:], ":"+m.nonce+":"+m.cnonce...)
	if cred.Authzid != "" {
		a1 = append(a1, ":"+cred.Authzid...)
	}
	m.a1 = a1

	var b strings.Builder
	b.WriteString("username=" + quote(user))
	if realm != "" {
		b.WriteString(",realm=" + quote(realm))
	}
	b.WriteString(",nonce=" + quote(m.nonce))
	b.WriteString(",cnonce=" + quote(m.cnonce))
	b.WriteString(",nc=" + kDigestNonceCount)
	b.WriteString(",qop=" + kDigestQop)
	b.WriteString(",digest-uri=" + quote(m.uri))
	b.WriteString(",response=" + m.responseValue("AUTHENTICATE:"+m.uri))
	if strings.EqualFold(m.charset, "utf-8") {
		b.WriteString(",charset=utf-8")
	}
	if cred.Authzid != "" {
		b.WriteString(",authzid=" + quote(cred.Authzid))
	}
	m.stage = digestResponded
	return []byte(b.String()), nil
}

// responseValue is HEX(KD(HEX(H(A1)), nonce:nc:cnonce:qop:HEX(H(A2)))).
func (m *digestMD5) responseValue(a2 string) string {
	ha1 := md5Hex(m.a1)
	ha2 := md5Hex([]byte(a2))
	return md5Hex([]byte(ha1 + ":" + m.nonce + ":" + kDigestNonceCount + ":" + m.cnonce + ":" + kDigestQop + ":" + ha2))
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func containsToken(list, token string) bool {
	for _, t := range strings.Split(list, ",") {
		if strings.EqualFold(strings.TrimSpace(t), token) {
			return true
		}
	}
	return false
}
