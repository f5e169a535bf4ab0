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

package cli

import (
	"hotrod/pkg/errors"
)

var (
	// ErrConnectionClosed fails requests of a connection closed by Close.
	ErrConnectionClosed = errors.New(errors.KindTransport, "connection closed")

	errConnectionClosed error = ErrConnectionClosed
)

// closedError is returned to callers that reach a connection after it
// stopped. It keeps the kind of the error that stopped the connection but
// is always retryable on another connection.
func closedError(cause error) error {
	if cause == nil || cause == errConnectionClosed {
		return ErrConnectionClosed
	}
	return errors.Wrap(errors.KindTransport, cause, "connection stopped")
}
