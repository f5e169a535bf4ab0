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

package sasl

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseDirectives(t *testing.T) {
	tests := []struct {
		in   string
		want map[string]string
	}{
		{`a=1,b="2"`, map[string]string{"a": "1", "b": "2"}},
		{`realm="x,y",nonce="n"`, map[string]string{"realm": "x,y", "nonce": "n"}},
		{`qop="auth,auth-int", Charset=utf-8`, map[string]string{"qop": "auth,auth-int", "charset": "utf-8"}},
		{`k="a\"b\\c"`, map[string]string{"k": `a"b\c`}},
		{`realm="first",realm="second"`, map[string]string{"realm": "first"}},
		{``, map[string]string{}},
		{`,,a=1,,`, map[string]string{"a": "1"}},
	}
	for _, tt := range tests {
		got, err := ParseDirectives(tt.in)
		if err != nil {
			t.Errorf("%q: %s", tt.in, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%q (-want +got):\n%s", tt.in, diff)
		}
	}
	for _, in := range []string{`novalue`, `a="unterminated`, `=x`} {
		if _, err := ParseDirectives(in); err == nil {
			t.Errorf("%q accepted", in)
		}
	}
}

func TestQuoteRoundTrip(t *testing.T) {
	for _, s := range []string{"", "plain", `with "quotes"`, `back\slash`, "comma,inside"} {
		got, err := ParseDirectives("k=" + quote(s))
		if err != nil || got["k"] != s {
			t.Errorf("%q: got %q %v", s, got["k"], err)
		}
	}
}
