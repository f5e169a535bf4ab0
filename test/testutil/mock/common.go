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
	"fmt"
	"testing"
	"time"

	"hotrod/pkg/proto"
)

const (
	DEF_OPCODE     = proto.OpCode(0)
	DEF_NORESPONSE = false
)

// MockInfo overrides how the fake server answers one opcode. An Opcode of
// 0 applies to every request.
//
// Error sends an error frame instead of the normal reply. Status, when not
// zero, replaces the status and sends an empty body. Times limits how many
// requests the override applies to, 0 meaning all of them.
type MockInfo struct {
	Opcode     proto.OpCode
	Status     proto.OpStatus
	Delay      time.Duration
	NoResponse bool
	Error      string
	Times      int
}

func NewMockInfo(op proto.OpCode) *MockInfo {
	return &MockInfo{Opcode: op, NoResponse: DEF_NORESPONSE}
}

func (m *MockInfo) matches(op proto.OpCode) bool {
	return m.Opcode == DEF_OPCODE || m.Opcode == op
}

func (m *MockInfo) ToString() string {
	noRespStr := ""
	if m.NoResponse {
		noRespStr = " no response"
	}
	return fmt.Sprintf("op=%s,st=%s,del=%s,err=%q,times=%d%s",
		m.Opcode.String(), m.Status.String(), m.Delay, m.Error, m.Times, noRespStr)
}

// MockParams is a set of overrides installed together.
type MockParams struct {
	MockInfoList []*MockInfo
}

func NewMockParams(infos ...*MockInfo) *MockParams {
	return &MockParams{MockInfoList: infos}
}

func (m *MockParams) Log(t *testing.T) {
	t.Helper()
	info := "MockParams being set {\n"
	for i, mi := range m.MockInfoList {
		info += fmt.Sprintf("[%d] %s\n", i, mi.ToString())
	}
	info += "}\n"
	t.Log(info)
}
