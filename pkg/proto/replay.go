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

// ReplayBuffer accumulates socket reads so that a frame can be decoded
// speculatively: Mark before decoding, Rewind when the decoder reports
// ErrIncomplete, Trim once the frame has been consumed.
type ReplayBuffer struct {
	ByteCursor
}

func NewReplayBuffer(sz int) *ReplayBuffer {
	return &ReplayBuffer{ByteCursor: ByteCursor{buf: make([]byte, 0, sz)}}
}

func (r *ReplayBuffer) Append(b []byte) {
	r.buf = append(r.buf, b...)
}

// Mark snapshots the current offset and returns the cursor to decode from.
func (r *ReplayBuffer) Mark() *ByteCursor {
	r.mark = r.offset
	return &r.ByteCursor
}

// Rewind restores the offset recorded by the last Mark.
func (r *ReplayBuffer) Rewind() {
	r.offset = r.mark
}

// Trim drops the consumed prefix and resets the offset to 0.
func (r *ReplayBuffer) Trim() {
	if r.offset == 0 {
		return
	}
	n := copy(r.buf, r.buf[r.offset:])
	r.buf = r.buf[:n]
	r.offset = 0
	r.mark = 0
}

func (r *ReplayBuffer) IsEmpty() bool {
	return r.offset >= len(r.buf)
}
