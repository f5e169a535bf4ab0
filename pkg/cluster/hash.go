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

package cluster

import (
	"github.com/spaolacci/murmur3"
)

const kHashSeed = 9001

// Hash is MurmurHash3 x64 of the encoded key folded to 31 bits.
func Hash(key []byte) uint32 {
	h := murmur3.Sum64WithSeed(key, kHashSeed)
	return (uint32(h>>32) ^ uint32(h)) & 0x7FFFFFFF
}

func SegmentOf(hash uint32, numSegments int) int {
	if numSegments <= 0 {
		return -1
	}
	return int(hash % uint32(numSegments))
}
