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
	"strings"

	"hotrod/pkg/errors"
)

// ParseDirectives splits a DIGEST-MD5 challenge into its key=value or
// key="value" directives. Commas inside quoted values do not separate
// directives and a backslash escapes the next character. Keys are lower
// cased; when a key repeats the first value is kept.
func ParseDirectives(s string) (map[string]string, error) {
	out := make(map[string]string)
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ',' || s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) {
			break
		}
		eq := strings.IndexByte(s[i:], '=')
		if eq < 0 {
			return nil, errors.Newf(errors.KindProtocol, "malformed directive %q", s[i:])
		}
		key := strings.ToLower(strings.TrimSpace(s[i : i+eq]))
		i += eq + 1
		for i < len(s) && s[i] == ' ' {
			i++
		}
		var value strings.Builder
		if i < len(s) && s[i] == '"' {
			i++
			closed := false
			for i < len(s) {
				ch := s[i]
				i++
				if ch == '\\' && i < len(s) {
					value.WriteByte(s[i])
					i++
					continue
				}
				if ch == '"' {
					closed = true
					break
				}
				value.WriteByte(ch)
			}
			if !closed {
				return nil, errors.Newf(errors.KindProtocol, "unterminated quoted value for %s", key)
			}
		} else {
			end := strings.IndexByte(s[i:], ',')
			if end < 0 {
				end = len(s) - i
			}
			value.WriteString(strings.TrimSpace(s[i : i+end]))
			i += end
		}
		if key == "" {
			return nil, errors.New(errors.KindProtocol, "directive without a name")
		}
		if _, dup := out[key]; !dup {
			out[key] = value.String()
		}
	}
	return out, nil
}

// quote renders a directive value in quoted-string form.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}
