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

var statusText = map[OpStatus]string{
	OpStatusSuccess:                 "OK",
	OpStatusNotExecuted:             "not executed",
	OpStatusNotFound:                "not found",
	OpStatusSuccessWithPrevious:     "OK, previous value returned",
	OpStatusNotExecutedWithPrevious: "not executed, previous value returned",
	OpStatusError:                   "error",
	OpStatusInvalidMagic:            "invalid magic or message id",
	OpStatusUnknownCommand:          "unknown command",
	OpStatusUnknownVersion:          "unknown version",
	OpStatusParseError:              "request parsing error",
	OpStatusServerError:             "server error",
	OpStatusCommandTimedOut:         "command timed out",
}

func StatusText(s OpStatus) string {
	return statusText[s]
}

func (s OpStatus) IsSuccess() bool {
	return s == OpStatusSuccess || s == OpStatusSuccessWithPrevious
}

func (s OpStatus) IsNotExecuted() bool {
	return s == OpStatusNotExecuted || s == OpStatusNotExecutedWithPrevious
}

func (s OpStatus) IsNotFound() bool {
	return s == OpStatusNotFound
}

// HasPrevious reports whether the body starts with the previous value.
func (s OpStatus) HasPrevious() bool {
	return s == OpStatusSuccessWithPrevious || s == OpStatusNotExecutedWithPrevious
}

// IsError reports whether the response body is an error string.
func (s OpStatus) IsError() bool {
	return s == OpStatusError || s&0x80 != 0
}
