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
	"encoding/pem"
	"os"

	"golang.org/x/crypto/pkcs12"

	"hotrod/pkg/errors"
)

// loadKeyStore reads a PKCS#12 key store holding the client certificate
// chain and its private key.
func loadKeyStore(path string, password string) (tls.Certificate, error) {
	if password == "" {
		return tls.Certificate{}, errors.New(errors.KindConfig, "tls: key store passphrase is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, errors.Wrap(errors.KindConfig, err, "tls: read key store")
	}
	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		return tls.Certificate{}, errors.Wrapf(errors.KindConfig, err, "tls: decode key store %s", path)
	}
	var pemData []byte
	for _, b := range blocks {
		pemData = append(pemData, pem.EncodeToMemory(b)...)
	}
	cert, err := tls.X509KeyPair(pemData, pemData)
	if err != nil {
		return tls.Certificate{}, errors.Wrapf(errors.KindConfig, err, "tls: key store %s", path)
	}
	return cert, nil
}
