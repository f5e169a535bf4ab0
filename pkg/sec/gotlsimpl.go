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

package sec

import (
	"crypto/tls"
	"fmt"
)

var tlsVersions = map[string]uint16{
	"1.0": tls.VersionTLS10,
	"1.1": tls.VersionTLS11,
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}

// NewClientTLSConfig builds the tls.Config used to dial servers. It returns
// nil when TLS is disabled.
func NewClientTLSConfig(cfg *Config) (*tls.Config, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	c := *cfg
	c.Default()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	tlscfg := &tls.Config{
		ServerName:         c.ServerName,
		InsecureSkipVerify: c.InsecureSkipVerify,
		MinVersion:         tlsVersions[c.MinVersion],
		ClientSessionCache: tls.NewLRUClientSessionCache(0),
	}
	var err error
	if tlscfg.RootCAs, err = loadRootCAs(&c); err != nil {
		return nil, err
	}
	var cert tls.Certificate
	switch {
	case c.KeyStoreFilePath != "":
		cert, err = loadKeyStore(c.KeyStoreFilePath, c.KeyStorePassword)
	case c.CertPemFilePath != "":
		cert, err = loadPemKeyPair(&c)
	default:
		return tlscfg, nil
	}
	if err != nil {
		return nil, err
	}
	tlscfg.Certificates = []tls.Certificate{cert}
	return tlscfg, nil
}

func GetVersionName(ver uint16) string {
	switch ver {
	case tls.VersionTLS10:
		return "TLSv1"
	case tls.VersionTLS11:
		return "TLSv1.1"
	case tls.VersionTLS12:
		return "TLSv1.2"
	case tls.VersionTLS13:
		return "TLSv1.3"
	default:
		return ""
	}
}

// GetStateString summarizes a negotiated session for connection logs.
func GetStateString(st tls.ConnectionState) string {
	s := fmt.Sprintf("%s:%s", GetVersionName(st.Version), tls.CipherSuiteName(st.CipherSuite))
	if st.DidResume {
		return s + ":ssl_r=1"
	}
	return s + ":ssl_r=0"
}
