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

package logging

import (
	"bytes"
	"strconv"
	"time"

	"hotrod/pkg/proto"
	"hotrod/pkg/util"
)

type KeyValueBuffer struct {
	bytes.Buffer
	delimiter     byte
	pairDelimiter byte
}

func NewKVBufferForLog() *KeyValueBuffer {
	b := &KeyValueBuffer{
		delimiter:     '=',
		pairDelimiter: ',',
	}
	return b
}

// NewKVBuffer returns a buffer in query string form, used for span and
// metric attributes that are emitted as one value.
func NewKVBuffer() *KeyValueBuffer {
	b := &KeyValueBuffer{
		pairDelimiter: '&',
		delimiter:     '=',
	}
	return b
}

var (
	logDataKeyOpCode   []byte = []byte("op")
	logDataKeyStatus   []byte = []byte("st")
	logDataKeyMsgId    []byte = []byte("msgid")
	logDataKeyCache    []byte = []byte("cache")
	logDataKeyKey      []byte = []byte("key")
	logDataKeyAddr     []byte = []byte("addr")
	logDataKeyTopology []byte = []byte("topo")
	logDataKeyElapsed  []byte = []byte("rht")
	logDataKeyListener []byte = []byte("lsnr")
	logDataKeyTryNo    []byte = []byte("try_no")
	logDataKeyErr      []byte = []byte("err")
	logDataKeyLen      []byte = []byte("len")
)

func (b *KeyValueBuffer) AddBytes(key []byte, value []byte) *KeyValueBuffer {
	if b.Len() > 0 {
		b.WriteByte(b.pairDelimiter)
	}
	b.Write(key)
	b.WriteByte(b.delimiter)
	b.Write(value)
	return b
}

func (b *KeyValueBuffer) Add(key []byte, value string) *KeyValueBuffer {
	if b.Len() > 0 {
		b.WriteByte(b.pairDelimiter)
	}
	b.Write(key)
	b.WriteByte(b.delimiter)
	b.WriteString(value)
	return b
}

func (b *KeyValueBuffer) AddInt(key []byte, value int) *KeyValueBuffer {
	return b.Add(key, strconv.Itoa(value))
}

func (b *KeyValueBuffer) AddUInt64(key []byte, value uint64) *KeyValueBuffer {
	return b.Add(key, strconv.FormatUint(value, 10))
}

func (b *KeyValueBuffer) AddHexKey(key []byte) *KeyValueBuffer {
	return b.Add(logDataKeyKey, util.ToHexString(key))
}

// AddKey logs the key in printable form followed by its hex bytes.
func (b *KeyValueBuffer) AddKey(key []byte) *KeyValueBuffer {
	return b.Add(logDataKeyKey, util.ToLogString(key))
}

func (b *KeyValueBuffer) AddOpCode(opcode proto.OpCode) *KeyValueBuffer {
	return b.Add(logDataKeyOpCode, opcode.String())
}

func (b *KeyValueBuffer) AddOpStatus(st proto.OpStatus) *KeyValueBuffer {
	if b.pairDelimiter == '&' && st == proto.OpStatusSuccess {
		return b
	}
	return b.Add(logDataKeyStatus, st.String())
}

func (b *KeyValueBuffer) AddStatus(st string) *KeyValueBuffer {
	return b.Add(logDataKeyStatus, st)
}

func (b *KeyValueBuffer) AddMessageID(id uint64) *KeyValueBuffer {
	return b.AddUInt64(logDataKeyMsgId, id)
}

func (b *KeyValueBuffer) AddCacheName(name string) *KeyValueBuffer {
	if name != "" {
		b.Add(logDataKeyCache, name)
	}
	return b
}

func (b *KeyValueBuffer) AddAddr(addr proto.ServerAddress) *KeyValueBuffer {
	return b.Add(logDataKeyAddr, addr.String())
}

func (b *KeyValueBuffer) AddTopologyID(id uint32) *KeyValueBuffer {
	return b.AddUInt64(logDataKeyTopology, uint64(id))
}

// AddElapsed logs d in microseconds.
func (b *KeyValueBuffer) AddElapsed(d time.Duration) *KeyValueBuffer {
	return b.AddInt(logDataKeyElapsed, int(d/time.Microsecond))
}

func (b *KeyValueBuffer) AddListenerID(id []byte) *KeyValueBuffer {
	return b.Add(logDataKeyListener, util.ToHexString(id))
}

func (b *KeyValueBuffer) AddTryNo(n int) *KeyValueBuffer {
	if n > 0 {
		b.AddInt(logDataKeyTryNo, n)
	}
	return b
}

func (b *KeyValueBuffer) AddPayloadLen(n int) *KeyValueBuffer {
	if n > 0 {
		b.AddInt(logDataKeyLen, n)
	}
	return b
}

func (b *KeyValueBuffer) AddError(err error) *KeyValueBuffer {
	if err != nil {
		b.Add(logDataKeyErr, err.Error())
	}
	return b
}

// AddResponseHeader logs message id, opcode, status and, when present, the
// new topology id of a response.
func (b *KeyValueBuffer) AddResponseHeader(h *proto.ResponseHeader) *KeyValueBuffer {
	b.AddMessageID(h.MessageID).AddOpCode(h.Op).AddOpStatus(h.Status)
	if h.Topology != nil {
		b.AddTopologyID(h.Topology.ID)
	}
	return b
}
