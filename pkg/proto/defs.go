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

package proto

import (
	"encoding/binary"
	"fmt"
)

type (
	OpCode       uint8
	OpStatus     uint8
	Intelligence uint8
)

const (
	RequestMagic  byte = 0xA0
	ResponseMagic byte = 0xA1
)

const (
	OpCodePut                  = OpCode(0x01)
	OpCodePutResp              = OpCode(0x02)
	OpCodeGet                  = OpCode(0x03)
	OpCodeGetResp              = OpCode(0x04)
	OpCodePutIfAbsent          = OpCode(0x05)
	OpCodePutIfAbsentResp      = OpCode(0x06)
	OpCodeReplace              = OpCode(0x07)
	OpCodeReplaceResp          = OpCode(0x08)
	OpCodeReplaceIfUnmodified  = OpCode(0x09)
	OpCodeReplaceIfUnmodResp   = OpCode(0x0A)
	OpCodeRemove               = OpCode(0x0B)
	OpCodeRemoveResp           = OpCode(0x0C)
	OpCodeRemoveIfUnmodified   = OpCode(0x0D)
	OpCodeRemoveIfUnmodResp    = OpCode(0x0E)
	OpCodeContainsKey          = OpCode(0x0F)
	OpCodeContainsKeyResp      = OpCode(0x10)
	OpCodeClear                = OpCode(0x13)
	OpCodeClearResp            = OpCode(0x14)
	OpCodeStats                = OpCode(0x15)
	OpCodeStatsResp            = OpCode(0x16)
	OpCodePing                 = OpCode(0x17)
	OpCodePingResp             = OpCode(0x18)
	OpCodeGetWithMetadata      = OpCode(0x1B)
	OpCodeGetWithMetadataResp  = OpCode(0x1C)
	OpCodeAuthMechList         = OpCode(0x21)
	OpCodeAuthMechListResp     = OpCode(0x22)
	OpCodeAuth                 = OpCode(0x23)
	OpCodeAuthResp             = OpCode(0x24)
	OpCodeAddClientListener    = OpCode(0x25)
	OpCodeAddClientListenerRsp = OpCode(0x26)
	OpCodeRemoveClientListener = OpCode(0x27)
	OpCodeRemoveClientLsnrResp = OpCode(0x28)
	OpCodeSize                 = OpCode(0x29)
	OpCodeSizeResp             = OpCode(0x2A)
	OpCodePutAll               = OpCode(0x2D)
	OpCodePutAllResp           = OpCode(0x2E)
	OpCodeGetAll               = OpCode(0x2F)
	OpCodeGetAllResp           = OpCode(0x30)
	OpCodeIterationStart       = OpCode(0x31)
	OpCodeIterationStartResp   = OpCode(0x32)
	OpCodeIterationNext        = OpCode(0x33)
	OpCodeIterationNextResp    = OpCode(0x34)
	OpCodeIterationEnd         = OpCode(0x35)
	OpCodeIterationEndResp     = OpCode(0x36)

	OpCodeError = OpCode(0x50)

	OpCodeCacheEntryCreated  = OpCode(0x60)
	OpCodeCacheEntryModified = OpCode(0x61)
	OpCodeCacheEntryRemoved  = OpCode(0x62)
	OpCodeCacheEntryExpired  = OpCode(0x63)
)

const (
	OpStatusSuccess                 = OpStatus(0x00)
	OpStatusNotExecuted             = OpStatus(0x01)
	OpStatusNotFound                = OpStatus(0x02)
	OpStatusSuccessWithPrevious     = OpStatus(0x03)
	OpStatusNotExecutedWithPrevious = OpStatus(0x04)

	OpStatusError = OpStatus(0x50)

	OpStatusInvalidMagic    = OpStatus(0x81)
	OpStatusUnknownCommand  = OpStatus(0x82)
	OpStatusUnknownVersion  = OpStatus(0x83)
	OpStatusParseError      = OpStatus(0x84)
	OpStatusServerError     = OpStatus(0x85)
	OpStatusCommandTimedOut = OpStatus(0x86)
)

const (
	IntelligenceBasic         = Intelligence(0x01)
	IntelligenceTopologyAware = Intelligence(0x02)
	IntelligenceHashAware     = Intelligence(0x03)
)

const (
	FlagForceReturnValue uint32 = 0x01

	kInfiniteLifespan byte = 0x01
	kInfiniteMaxIdle  byte = 0x02
)

var (
	EncByteOrder = binary.BigEndian
)

var (
	opCodeNameMap = map[OpCode]string{
		OpCodePut:                  "Put",
		OpCodeGet:                  "Get",
		OpCodePutIfAbsent:          "PutIfAbsent",
		OpCodeReplace:              "Replace",
		OpCodeReplaceIfUnmodified:  "ReplaceIfUnmodified",
		OpCodeRemove:               "Remove",
		OpCodeRemoveIfUnmodified:   "RemoveIfUnmodified",
		OpCodeContainsKey:          "ContainsKey",
		OpCodeClear:                "Clear",
		OpCodeStats:                "Stats",
		OpCodePing:                 "Ping",
		OpCodeGetWithMetadata:      "GetWithMetadata",
		OpCodeAuthMechList:         "AuthMechList",
		OpCodeAuth:                 "Auth",
		OpCodeAddClientListener:    "AddClientListener",
		OpCodeRemoveClientListener: "RemoveClientListener",
		OpCodeSize:                 "Size",
		OpCodePutAll:               "PutAll",
		OpCodeGetAll:               "GetAll",
		OpCodeIterationStart:       "IterationStart",
		OpCodeIterationNext:        "IterationNext",
		OpCodeIterationEnd:         "IterationEnd",
		OpCodeError:                "Error",
		OpCodeCacheEntryCreated:    "CacheEntryCreated",
		OpCodeCacheEntryModified:   "CacheEntryModified",
		OpCodeCacheEntryRemoved:    "CacheEntryRemoved",
		OpCodeCacheEntryExpired:    "CacheEntryExpired",
	}

	opStatusNameMap = map[OpStatus]string{
		OpStatusSuccess:                 "Ok",
		OpStatusNotExecuted:             "NotExecuted",
		OpStatusNotFound:                "NotFound",
		OpStatusSuccessWithPrevious:     "OkWithPrevious",
		OpStatusNotExecutedWithPrevious: "NotExecutedWithPrevious",
		OpStatusError:                   "Error",
		OpStatusInvalidMagic:            "InvalidMagic",
		OpStatusUnknownCommand:          "UnknownCommand",
		OpStatusUnknownVersion:          "UnknownVersion",
		OpStatusParseError:              "ParseError",
		OpStatusServerError:             "ServerError",
		OpStatusCommandTimedOut:         "CommandTimedOut",
	}
)

// String names a request opcode. Response opcodes are named after their
// request.
func (op OpCode) String() string {
	if name, ok := opCodeNameMap[op]; ok {
		return name
	}
	if !op.IsEvent() && op&1 == 0 {
		if name, ok := opCodeNameMap[op-1]; ok {
			return name + "Resp"
		}
	}
	return fmt.Sprintf("Op(%#x)", uint8(op))
}

// Response returns the response opcode paired with a request opcode.
func (op OpCode) Response() OpCode {
	return op + 1
}

// IsEvent reports whether op denotes a server pushed event frame. The bit
// test matches the server's event opcode numbering (0x60..0x6F).
func (op OpCode) IsEvent() bool {
	return (op>>4)&0x06 == 0x06
}

func (s OpStatus) String() string {
	if name, ok := opStatusNameMap[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%#x)", uint8(s))
}

type ProtocolError struct {
	what string
}

func NewProtocolError(err error) *ProtocolError {
	return &ProtocolError{
		what: err.Error(),
	}
}

func NewProtocolErrorf(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{what: fmt.Sprintf(format, args...)}
}

func (e *ProtocolError) Error() string {
	return "ProtocolError: " + e.what
}

// StatusError is returned by a decoder for a well-formed response whose
// status it does not accept. The frame has been consumed.
type StatusError struct {
	Op     OpCode
	Status OpStatus
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s status %s", e.Op, e.Status)
}

type incompleteError struct{}

func (incompleteError) Error() string {
	return "insufficient data"
}

var (
	// ErrIncomplete is returned by every decoder that ran out of bytes. It is
	// not a protocol error; the caller rewinds and waits for more data.
	ErrIncomplete error = incompleteError{}

	ErrInvalidMagic      = &ProtocolError{"Invalid magic byte"}
	ErrInvalidLength     = &ProtocolError{"Invalid length"}
	ErrVarintOverflow    = &ProtocolError{"Variable length integer overflow"}
	ErrNegativeVarint    = &ProtocolError{"Negative value for unsigned variable length integer"}
	ErrUnexpectedOpCode  = &ProtocolError{"Unexpected response opcode"}
	ErrInvalidMediaType  = &ProtocolError{"Invalid media type descriptor"}
	ErrInvalidTimeUnit   = &ProtocolError{"Invalid time unit"}
	ErrInvalidTopology   = &ProtocolError{"Invalid topology"}
	ErrUnexpectedMessage = &ProtocolError{"Unexpected message"}
)
