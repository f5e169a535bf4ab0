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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"hotrod/pkg/sec"
)

const tomlConfig = `
Servers = ["10.0.0.1:11222", "10.0.0.2"]
CacheName = "books"
Version = "2.9"
Intelligence = "topology"
ValueMediaType = "application/json"
MaxRetries = 5
RequestTimeout = "1500ms"
FailbackInterval = "30s"

[[Clusters]]
Name = "west"
Servers = ["10.1.0.1"]

[Auth]
Enabled = true
Mechanism = "SCRAM-SHA-256"
Username = "reader"
Password = "pw"

[TLS]
Enabled = true
CAFilePath = "/etc/hotrod/ca.pem"
`

const yamlConfig = `
servers: ["10.0.0.1:11222", "10.0.0.2"]
cacheName: books
version: "2.9"
intelligence: topology
valueMediaType: application/json
maxRetries: 5
requestTimeout: 1500ms
failbackInterval: 30s
clusters:
  - name: west
    servers: ["10.1.0.1"]
auth:
  enabled: true
  mechanism: SCRAM-SHA-256
  username: reader
  password: pw
tls:
  enabled: true
  caFilePath: /etc/hotrod/ca.pem
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	want := Config{
		Servers:        []string{"10.0.0.1:11222", "10.0.0.2"},
		Clusters:       []ClusterConfig{{Name: "west", Servers: []string{"10.1.0.1"}}},
		Version:        "2.9",
		CacheName:      "books",
		Intelligence:   "topology",
		KeyMediaType:   "text/plain",
		ValueMediaType: "application/json",
		MaxRetries:     5,
		ConnectTimeout: Duration{Duration: 2 * time.Second},
		RequestTimeout: Duration{Duration: 1500 * time.Millisecond},
		WriteTimeout:   Duration{Duration: 2 * time.Second},
		ReadBufferSize: 64 * 1024,

		FailbackInterval: Duration{Duration: 30 * time.Second},

		Auth: AuthConfig{
			Enabled:   true,
			Mechanism: "SCRAM-SHA-256",
			Username:  "reader",
			Password:  "pw",
		},
		TLS: sec.Config{
			Enabled:    true,
			CAFilePath: "/etc/hotrod/ca.pem",
			MinVersion: "1.2",
		},
	}
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"toml", "client.toml", tomlConfig},
		{"yaml", "client.yaml", yamlConfig},
		{"yml", "client.yml", yamlConfig},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conf, err := LoadConfig(writeFile(t, tc.file, tc.content))
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(want, *conf); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
			if err = conf.validate(); err != nil {
				t.Errorf("validate: %s", err)
			}
		})
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"extension", writeFile(t, "client.json", "{}")},
		{"missing", filepath.Join(t.TempDir(), "none.toml")},
		{"bad toml", writeFile(t, "bad.toml", "Servers = [")},
		{"unknown yaml field", writeFile(t, "bad.yaml", "serverz: [a]\n")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfig(tc.path); !IsConfigError(err) {
				t.Errorf("want configuration error, got %v", err)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"no servers", func(c *Config) { c.Servers = nil }},
		{"version", func(c *Config) { c.Version = "9.9" }},
		{"intelligence", func(c *Config) { c.Intelligence = "psychic" }},
		{"key media type", func(c *Config) { c.KeyMediaType = "image/png" }},
		{"value media type", func(c *Config) { c.ValueMediaType = "image/png" }},
		{"retries", func(c *Config) { c.MaxRetries = -1 }},
		{"empty cluster", func(c *Config) { c.Clusters = []ClusterConfig{{Name: "west"}} }},
		{"auth without user", func(c *Config) { c.Auth = AuthConfig{Enabled: true, Mechanism: "PLAIN"} }},
		{"key store passphrase", func(c *Config) {
			c.TLS = sec.Config{Enabled: true, KeyStoreFilePath: "client.p12"}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conf := Config{Servers: []string{"127.0.0.1"}}
			tc.modify(&conf)
			conf.SetDefault()
			err := conf.validate()
			if !IsConfigError(err) {
				t.Errorf("want configuration error, got %v", err)
			}
			if _, err = New(conf); !IsConfigError(err) {
				t.Errorf("New: want configuration error, got %v", err)
			}
		})
	}
}

func TestConfigSetDefaultKeepsValues(t *testing.T) {
	conf := Config{
		Servers:        []string{"a"},
		MaxRetries:     7,
		RequestTimeout: Duration{Duration: time.Second},
	}
	conf.SetDefault()
	if conf.MaxRetries != 7 || conf.RequestTimeout.Duration != time.Second {
		t.Errorf("SetDefault overwrote values: %+v", conf)
	}
	if conf.Version != "3.0" || conf.Intelligence != "hash" {
		t.Errorf("defaults not applied: version=%s intelligence=%s", conf.Version, conf.Intelligence)
	}
}
