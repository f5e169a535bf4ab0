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
	"hotrod/pkg/errors"
)

var (
	ErrClosed         = errors.New(errors.KindTransport, "client closed")
	ErrNoServers      = errors.New(errors.KindTransport, "no server available")
	ErrIteratorClosed = errors.New(errors.KindConfig, "iterator closed")
	ErrListenerClosed = errors.New(errors.KindListener, "listener connection closed")
)

// IsRetryable reports whether sending the request again may succeed.
func IsRetryable(err error) bool {
	return errors.IsRetryable(err)
}

func IsServerError(err error) bool {
	return errors.IsKind(err, errors.KindServer)
}

func IsConfigError(err error) bool {
	return errors.IsKind(err, errors.KindConfig)
}

func unexpectedValue(op string, v interface{}) error {
	return errors.Newf(errors.KindProtocol, "%s: unexpected decoded value %T", op, v)
}
