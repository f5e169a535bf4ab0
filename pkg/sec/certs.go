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
	"crypto/x509"
	"os"

	"github.com/golang/glog"

	"hotrod/pkg/errors"
)

func loadPemKeyPair(cfg *Config) (tls.Certificate, error) {
	certPEMBlock, err := os.ReadFile(cfg.CertPemFilePath)
	if err != nil {
		return tls.Certificate{}, errors.Wrap(errors.KindConfig, err, "tls: read certificate")
	}
	keyPEMBlock, err := os.ReadFile(cfg.KeyPemFilePath)
	if err != nil {
		return tls.Certificate{}, errors.Wrap(errors.KindConfig, err, "tls: read key")
	}
	cert, err := tls.X509KeyPair(certPEMBlock, keyPEMBlock)
	if err != nil {
		return tls.Certificate{}, errors.Wrap(errors.KindConfig, err, "tls: key pair")
	}
	return cert, nil
}

// loadRootCAs returns the system pool extended with the configured CA file.
func loadRootCAs(cfg *Config) (*x509.CertPool, error) {
	if cfg.CAFilePath == "" {
		return nil, nil
	}
	caPEMBlock, err := os.ReadFile(cfg.CAFilePath)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, err, "tls: read CA file")
	}
	rootCAs, _ := x509.SystemCertPool()
	if rootCAs == nil {
		rootCAs = x509.NewCertPool()
	}
	if !rootCAs.AppendCertsFromPEM(caPEMBlock) {
		glog.Errorf("no certificate appended from %s", cfg.CAFilePath)
		return nil, errors.Newf(errors.KindConfig, "tls: no certificate in %s", cfg.CAFilePath)
	}
	return rootCAs, nil
}
