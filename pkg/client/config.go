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
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v2"

	"hotrod/pkg/errors"
	"hotrod/pkg/proto"
	"hotrod/pkg/sasl"
	"hotrod/pkg/sec"
	"hotrod/pkg/util"
)

type Duration = util.Duration

type ClusterConfig struct {
	Name    string   `toml:"Name" yaml:"name"`
	Servers []string `toml:"Servers" yaml:"servers"`
}

type AuthConfig struct {
	Enabled bool `toml:"Enabled" yaml:"enabled"`
	// Mechanism is the preferred SASL mechanism. When empty the first
	// mechanism advertised by the server that the client supports is used.
	Mechanism  string `toml:"Mechanism" yaml:"mechanism"`
	Username   string `toml:"Username" yaml:"username"`
	Password   string `toml:"Password" yaml:"password"`
	Authzid    string `toml:"Authzid" yaml:"authzid"`
	Token      string `toml:"Token" yaml:"token"`
	Realm      string `toml:"Realm" yaml:"realm"`
	ServerName string `toml:"ServerName" yaml:"serverName"`
}

func (a *AuthConfig) credentials() *sasl.Credentials {
	return &sasl.Credentials{
		Username:   a.Username,
		Password:   a.Password,
		Authzid:    a.Authzid,
		Token:      a.Token,
		Realm:      a.Realm,
		ServerName: a.ServerName,
	}
}

type Config struct {
	Servers  []string        `toml:"Servers" yaml:"servers"`
	Clusters []ClusterConfig `toml:"Clusters" yaml:"clusters"`

	Version   string `toml:"Version" yaml:"version"`
	CacheName string `toml:"CacheName" yaml:"cacheName"`
	// Intelligence is one of basic, topology or hash
	Intelligence   string `toml:"Intelligence" yaml:"intelligence"`
	KeyMediaType   string `toml:"KeyMediaType" yaml:"keyMediaType"`
	ValueMediaType string `toml:"ValueMediaType" yaml:"valueMediaType"`

	MaxRetries     int      `toml:"MaxRetries" yaml:"maxRetries"`
	ConnectTimeout Duration `toml:"ConnectTimeout" yaml:"connectTimeout"`
	RequestTimeout Duration `toml:"RequestTimeout" yaml:"requestTimeout"`
	WriteTimeout   Duration `toml:"WriteTimeout" yaml:"writeTimeout"`
	ReadBufferSize int      `toml:"ReadBufferSize" yaml:"readBufferSize"`

	// FailbackInterval is how often the default cluster is checked after a
	// failover moved the client to another cluster.
	FailbackInterval Duration `toml:"FailbackInterval" yaml:"failbackInterval"`

	Auth AuthConfig `toml:"Auth" yaml:"auth"`
	TLS  sec.Config `toml:"TLS" yaml:"tls"`

	// Registerer receives the client metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer `toml:"-" yaml:"-"`
	// TracerProvider creates the operation spans. Nil uses the global one.
	TracerProvider trace.TracerProvider `toml:"-" yaml:"-"`
}

var defaultConfig = Config{
	Version:        proto.Version30.String(),
	Intelligence:   "hash",
	KeyMediaType:   "text/plain",
	ValueMediaType: "text/plain",
	MaxRetries:     3,
	ConnectTimeout: Duration{Duration: 2 * time.Second},
	RequestTimeout: Duration{Duration: 5 * time.Second},
	WriteTimeout:   Duration{Duration: 2 * time.Second},
	ReadBufferSize: 64 * 1024,

	FailbackInterval: Duration{Duration: 10 * time.Second},
}

var intelligenceNames = map[string]proto.Intelligence{
	"basic":    proto.IntelligenceBasic,
	"topology": proto.IntelligenceTopologyAware,
	"hash":     proto.IntelligenceHashAware,
}

func SetDefaultTimeout(connect, request, write time.Duration) {
	defaultConfig.ConnectTimeout.Duration = connect
	defaultConfig.RequestTimeout.Duration = request
	defaultConfig.WriteTimeout.Duration = write
}

// SetDefault fills the fields left empty.
func (c *Config) SetDefault() {
	if c.Version == "" {
		c.Version = defaultConfig.Version
	}
	if c.Intelligence == "" {
		c.Intelligence = defaultConfig.Intelligence
	}
	if c.KeyMediaType == "" {
		c.KeyMediaType = defaultConfig.KeyMediaType
	}
	if c.ValueMediaType == "" {
		c.ValueMediaType = defaultConfig.ValueMediaType
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultConfig.MaxRetries
	}
	if c.ConnectTimeout.Duration == 0 {
		c.ConnectTimeout = defaultConfig.ConnectTimeout
	}
	if c.RequestTimeout.Duration == 0 {
		c.RequestTimeout = defaultConfig.RequestTimeout
	}
	if c.WriteTimeout.Duration == 0 {
		c.WriteTimeout = defaultConfig.WriteTimeout
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = defaultConfig.ReadBufferSize
	}
	if c.FailbackInterval.Duration == 0 {
		c.FailbackInterval = defaultConfig.FailbackInterval
	}
	c.TLS.Default()
}

func (c *Config) validate() error {
	if len(c.Servers) == 0 {
		return errors.New(errors.KindConfig, "Config.Servers not specified")
	}
	if _, err := proto.ParseVersion(c.Version); err != nil {
		return err
	}
	if _, ok := intelligenceNames[c.Intelligence]; !ok {
		return errors.Newf(errors.KindConfig, "unknown client intelligence %q", c.Intelligence)
	}
	if _, ok := proto.CodecFor(c.KeyMediaType); !ok {
		return errors.Newf(errors.KindConfig, "unsupported key media type %q", c.KeyMediaType)
	}
	if _, ok := proto.CodecFor(c.ValueMediaType); !ok {
		return errors.Newf(errors.KindConfig, "unsupported value media type %q", c.ValueMediaType)
	}
	if c.MaxRetries < 0 {
		return errors.Newf(errors.KindConfig, "negative Config.MaxRetries %d", c.MaxRetries)
	}
	for _, cl := range c.Clusters {
		if len(cl.Servers) == 0 {
			return errors.Newf(errors.KindConfig, "cluster %q has no servers", cl.Name)
		}
	}
	if c.Auth.Enabled && c.Auth.Username == "" && c.Auth.Token == "" && c.Auth.Mechanism != "EXTERNAL" {
		return errors.New(errors.KindConfig, "Config.Auth needs a user name or a token")
	}
	return c.TLS.Validate()
}

// protocol builds the protocol of a validated config.
func (c *Config) protocol() (*proto.Protocol, error) {
	v, err := proto.ParseVersion(c.Version)
	if err != nil {
		return nil, err
	}
	keyCodec, _ := proto.CodecFor(c.KeyMediaType)
	valueCodec, _ := proto.CodecFor(c.ValueMediaType)
	return proto.NewProtocol(v, proto.ProtocolConfig{
		CacheName:    c.CacheName,
		Intelligence: intelligenceNames[c.Intelligence],
		KeyCodec:     keyCodec,
		ValueCodec:   valueCodec,
	})
}

// LoadConfig reads a .toml, .yaml or .yml file and applies the defaults.
func LoadConfig(path string) (*Config, error) {
	conf := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, conf); err != nil {
			return nil, errors.Wrapf(errors.KindConfig, err, "load %s", path)
		}
	case ".yaml", ".yml":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(errors.KindConfig, err, "load %s", path)
		}
		if err = yaml.UnmarshalStrict(b, conf); err != nil {
			return nil, errors.Wrapf(errors.KindConfig, err, "load %s", path)
		}
	default:
		return nil, errors.Newf(errors.KindConfig, "unknown config file type %q", path)
	}
	conf.SetDefault()
	return conf, nil
}
