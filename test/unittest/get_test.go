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

package unittest

import (
	"context"
	"testing"

	"hotrod/pkg/client"
	"hotrod/pkg/proto"
	"hotrod/test/testutil/mock"
)

func TestGetNormal(t *testing.T) {
	ctx := context.Background()
	key := generateKey()
	if _, err := TestClient.Put(ctx, key, "Value to be stored for Get"); err != nil {
		t.Fatal("set failed. error: ", err)
	}
	v, err := TestClient.Get(ctx, key)
	if err != nil {
		t.Fatal("get failed. error: ", err)
	}
	if v != "Value to be stored for Get" {
		t.Errorf("get = %v", v)
	}
	found, err := TestClient.ContainsKey(ctx, key)
	if err != nil || !found {
		t.Errorf("contains key = %v, %v", found, err)
	}
}

func TestGetNoKey(t *testing.T) {
	ctx := context.Background()
	key := generateKey()
	v, err := TestClient.Get(ctx, key)
	if err != nil || v != nil {
		t.Errorf("get of missing key = %v, %v", v, err)
	}
	e, err := TestClient.GetWithMetadata(ctx, key)
	if err != nil || e != nil {
		t.Errorf("get with metadata of missing key = %+v, %v", e, err)
	}
	if found, err := TestClient.ContainsKey(ctx, key); err != nil || found {
		t.Errorf("contains missing key = %v, %v", found, err)
	}
}

func TestGetImmortal(t *testing.T) {
	ctx := context.Background()
	key := generateKey()
	if _, err := TestClient.Put(ctx, key, "v"); err != nil {
		t.Fatal("set failed. error: ", err)
	}
	e, err := TestClient.GetWithMetadata(ctx, key)
	if err != nil {
		t.Fatal("get failed. error: ", err)
	}
	if !e.Metadata.IsImmortal() {
		t.Errorf("metadata %+v, want immortal", e.Metadata)
	}
	if e.Metadata.Version == 0 {
		t.Error("missing entry version")
	}
}

func TestGetRoutedToOwner(t *testing.T) {
	ctx := context.Background()
	key := generateKey()
	owner := ownerOf(t, key)
	for i := 0; i < 5; i++ {
		before := owner.Count(proto.OpCodeGet)
		if _, err := TestClient.Get(ctx, key); err != nil {
			t.Fatal(err)
		}
		if owner.Count(proto.OpCodeGet) != before+1 {
			t.Fatalf("get %d not served by the owner", i)
		}
	}
}

func TestGetServerErrorNotRetried(t *testing.T) {
	key := generateKey()
	owner := mockOwner(t, key, &mock.MockInfo{Opcode: proto.OpCodeGet, Error: "unexpected failure", Times: 1})
	before := counts(proto.OpCodeGet)

	_, err := TestClient.Get(context.Background(), key, client.WithRetry())
	if !client.IsServerError(err) {
		t.Fatalf("get = %v, want a server error", err)
	}
	after := counts(proto.OpCodeGet)
	for i, srv := range Nodes {
		want := before[i]
		if srv == owner {
			want++
		}
		if after[i] != want {
			t.Errorf("node %d received %d gets, want %d", i, after[i], want)
		}
	}
}

func TestGetIterate(t *testing.T) {
	if protocolVersion == "2.2" {
		t.Skip("iteration needs protocol 2.5 or later")
	}
	ctx := context.Background()
	n, err := TestClient.Size(ctx)
	if err != nil {
		t.Fatal("size failed. error: ", err)
	}
	it, err := TestClient.Iterator(ctx, 4, client.IteratorOptions{Metadata: true})
	if err != nil {
		t.Fatal("iteration start failed. error: ", err)
	}
	defer it.Close(ctx)
	var seen int64
	for {
		e, ok, err := it.Next(ctx)
		if err != nil {
			t.Fatal("iteration failed. error: ", err)
		}
		if !ok {
			break
		}
		if e.Metadata == nil {
			t.Fatalf("entry %v without metadata", e.Key)
		}
		seen++
	}
	if seen != n {
		t.Errorf("iterated %d entries, size reported %d", seen, n)
	}
}
