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
	"golang.org/x/text/secure/precis"

	"hotrod/pkg/errors"
)

// prepare normalizes the user name and password the way SASLprep does.
func prepare(cred *Credentials) (user, pass string, err error) {
	if cred.Username != "" {
		if user, err = precis.UsernameCasePreserved.String(cred.Username); err != nil {
			return "", "", errors.Wrap(errors.KindConfig, err, "SASL user name")
		}
	}
	if cred.Password != "" {
		if pass, err = precis.OpaqueString.String(cred.Password); err != nil {
			return "", "", errors.Wrap(errors.KindConfig, err, "SASL password")
		}
	}
	return user, pass, nil
}

// singleStep is embedded by the client-first mechanisms that send one
// token and expect no challenge.
type singleStep struct {
	name string
	sent bool
}

func (s *singleStep) Name() string {
	return s.name
}

func (s *singleStep) Challenge(b []byte) error {
	if len(b) != 0 {
		return errors.Wrapf(errors.KindProtocol, ErrUnexpectedChallenge, "%s", s.name)
	}
	return nil
}

// respond returns the initial token once and empty tokens afterwards.
func (s *singleStep) respond(f func() ([]byte, error)) ([]byte, error) {
	if s.sent {
		return []byte{}, nil
	}
	s.sent = true
	return f()
}

type plain struct {
	singleStep
}

func newPlain(*Registry) Mechanism {
	return &plain{singleStep{name: "PLAIN"}}
}

// Response is authzid NUL user NUL password.
func (m *plain) Response(cred *Credentials) ([]byte, error) {
	return m.respond(func() ([]byte, error) {
		user, pass, err := prepare(cred)
		if err != nil {
			return nil, err
		}
		b := make([]byte, 0, len(cred.Authzid)+len(user)+len(pass)+2)
		b = append(b, cred.Authzid...)
		b = append(b, 0)
		b = append(b, user...)
		b = append(b, 0)
		b = append(b, pass...)
		return b, nil
	})
}

type external struct {
	singleStep
}

func newExternal(*Registry) Mechanism {
	return &external{singleStep{name: "EXTERNAL"}}
}

func (m *external) Response(cred *Credentials) ([]byte, error) {
	return m.respond(func() ([]byte, error) {
		return []byte(cred.Authzid), nil
	})
}

type oauthBearer struct {
	singleStep
}

func newOAuthBearer(*Registry) Mechanism {
	return &oauthBearer{singleStep{name: "OAUTHBEARER"}}
}

// Response is the RFC 7628 initial client response.
func (m *oauthBearer) Response(cred *Credentials) ([]byte, error) {
	return m.respond(func() ([]byte, error) {
		if cred.Token == "" {
			return nil, errors.New(errors.KindConfig, "OAUTHBEARER requires a token")
		}
		gs2 := "n,,"
		if cred.Authzid != "" {
			gs2 = "n,a=" + escapeSaslName(cred.Authzid) + ","
		}
		return []byte(gs2 + "\x01auth=Bearer " + cred.Token + "\x01\x01"), nil
	})
}
