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
	"github.com/golang/glog"

	"hotrod/pkg/errors"
)

var (
	DefaultConfig = Config{
		MinVersion: "1.2",
	}
)

// Config is the TLS block of the client configuration. The client key pair
// comes either from PEM files or from a PKCS#12 key store, in which case
// the passphrase is required.
type Config struct {
	Enabled            bool   `yaml:"enabled"`
	ServerName         string `yaml:"serverName"`
	CertPemFilePath    string `yaml:"certPemFilePath"`
	KeyPemFilePath     string `yaml:"keyPemFilePath"`
	CAFilePath         string `yaml:"caFilePath"`
	KeyStoreFilePath   string `yaml:"keyStoreFilePath"`
	KeyStorePassword   string `yaml:"keyStorePassword"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
	MinVersion         string `yaml:"minVersion"`
}

func (c *Config) Default() {
	if c.MinVersion == "" {
		c.MinVersion = DefaultConfig.MinVersion
	}
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.KeyStoreFilePath != "" {
		if c.KeyStorePassword == "" {
			return errors.New(errors.KindConfig, "tls: key store passphrase is required")
		}
		if c.CertPemFilePath != "" || c.KeyPemFilePath != "" {
			return errors.New(errors.KindConfig, "tls: both key store and PEM key pair configured")
		}
	}
	if (c.CertPemFilePath == "") != (c.KeyPemFilePath == "") {
		return errors.New(errors.KindConfig, "tls: certificate and key PEM files go together")
	}
	if _, ok := tlsVersions[c.MinVersion]; !ok && c.MinVersion != "" {
		return errors.Newf(errors.KindConfig, "tls: unknown minimum version %q", c.MinVersion)
	}
	return nil
}

func (c *Config) Dump() {
	glog.Infof("tls enabled=%t server_name=%s ca=%s cert=%s key_store=%s min_version=%s",
		c.Enabled, c.ServerName, c.CAFilePath, c.CertPemFilePath, c.KeyStoreFilePath, c.MinVersion)
}
