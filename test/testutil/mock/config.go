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

package mock

import (
	"time"

	"hotrod/pkg/proto"
)

type Config struct {
	// Mechanisms returned by the auth mech list operation.
	Mechanisms []string
	// Users accepted by PLAIN authentication, user name to password.
	// Authentication always fails when empty.
	Users map[string]string
	// Topology is attached to responses whose request carries another
	// topology id.
	Topology *proto.TopologyUpdate
	// FragmentWrites splits every outgoing frame into small chunks written
	// FragmentDelay apart.
	FragmentWrites bool
	FragmentDelay  time.Duration
	ServerVersion  proto.Version
	// Store, when set, backs the server instead of a private store. Servers
	// sharing one behave like the replicated nodes of a single cluster.
	Store *Store
}

var (
	DefaultConfig Config = Config{
		Mechanisms:    []string{"PLAIN"},
		FragmentDelay: time.Millisecond,
		ServerVersion: proto.Version30,
	}
)
