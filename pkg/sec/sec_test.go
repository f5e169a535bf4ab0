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
	"bytes"
	"crypto/tls"
	"encoding/pem"
	"net"
	"os"
	"strings"
	"testing"

	"hotrod/pkg/errors"
)

const (
	testCertFile     = "testdata/client.crt"
	testKeyFile      = "testdata/client.key"
	testKeyStoreFile = "testdata/client.p12"
	testKeyStorePass = "secret"
)

func testCertDER(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(testCertFile)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := pem.Decode(data)
	if b == nil {
		t.Fatal("no PEM block in test certificate")
	}
	return b.Bytes
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"disabled", Config{KeyStoreFilePath: "x.p12"}, true},
		{"pem", Config{Enabled: true, CertPemFilePath: "c", KeyPemFilePath: "k"}, true},
		{"key store", Config{Enabled: true, KeyStoreFilePath: "x.p12", KeyStorePassword: "p"}, true},
		{"key store without passphrase", Config{Enabled: true, KeyStoreFilePath: "x.p12"}, false},
		{"key store and pem", Config{Enabled: true, KeyStoreFilePath: "x.p12", KeyStorePassword: "p", CertPemFilePath: "c", KeyPemFilePath: "k"}, false},
		{"cert without key", Config{Enabled: true, CertPemFilePath: "c"}, false},
		{"bad min version", Config{Enabled: true, MinVersion: "0.9"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok && err != nil {
				t.Errorf("unexpected error %s", err)
			}
			if !tc.ok && !errors.IsKind(err, errors.KindConfig) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestNewClientTLSConfigDisabled(t *testing.T) {
	tlscfg, err := NewClientTLSConfig(&Config{})
	if tlscfg != nil || err != nil {
		t.Errorf("got %v %v", tlscfg, err)
	}
}

func TestNewClientTLSConfigKeyPair(t *testing.T) {
	want := testCertDER(t)
	tests := []struct {
		name string
		cfg  Config
	}{
		{"pem", Config{Enabled: true, CertPemFilePath: testCertFile, KeyPemFilePath: testKeyFile}},
		{"key store", Config{Enabled: true, KeyStoreFilePath: testKeyStoreFile, KeyStorePassword: testKeyStorePass}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tlscfg, err := NewClientTLSConfig(&tc.cfg)
			if err != nil {
				t.Fatal(err)
			}
			if len(tlscfg.Certificates) != 1 {
				t.Fatalf("%d certificates", len(tlscfg.Certificates))
			}
			if !bytes.Equal(tlscfg.Certificates[0].Certificate[0], want) {
				t.Error("certificate differs from the test certificate")
			}
			if tlscfg.MinVersion != tls.VersionTLS12 {
				t.Errorf("min version %x", tlscfg.MinVersion)
			}
		})
	}
}

func TestKeyStoreErrors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		password string
	}{
		{"no passphrase", testKeyStoreFile, ""},
		{"wrong passphrase", testKeyStoreFile, "wrong"},
		{"missing file", "testdata/missing.p12", testKeyStorePass},
		{"not a key store", testCertFile, testKeyStorePass},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadKeyStore(tc.path, tc.password)
			if !errors.IsKind(err, errors.KindConfig) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestHandshakeWithCA(t *testing.T) {
	tlscfg, err := NewClientTLSConfig(&Config{
		Enabled:    true,
		ServerName: "localhost",
		CAFilePath: testCertFile,
		MinVersion: "1.3",
	})
	if err != nil {
		t.Fatal(err)
	}
	serverCert, err := tls.LoadX509KeyPair(testCertFile, testKeyFile)
	if err != nil {
		t.Fatal(err)
	}
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	server := tls.Server(c2, &tls.Config{Certificates: []tls.Certificate{serverCert}})
	go server.Handshake()

	client := tls.Client(c1, tlscfg)
	if err = client.Handshake(); err != nil {
		t.Fatal(err)
	}
	if st := GetStateString(client.ConnectionState()); !strings.HasPrefix(st, "TLSv1.3:") {
		t.Errorf("state %s", st)
	}
}
