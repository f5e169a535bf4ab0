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
	"fmt"
	"strconv"
	"strings"
	"time"

	"hotrod/pkg/errors"
)

type TimeUnit byte

const (
	UnitSeconds      = TimeUnit(0)
	UnitMilliseconds = TimeUnit(1)
	UnitNanoseconds  = TimeUnit(2)
	UnitMicroseconds = TimeUnit(3)
	UnitMinutes      = TimeUnit(4)
	UnitHours        = TimeUnit(5)
	UnitDays         = TimeUnit(6)
	UnitDefault      = TimeUnit(7)
	UnitInfinite     = TimeUnit(8)
)

var (
	unitSuffix = map[TimeUnit]string{
		UnitSeconds:      "s",
		UnitMilliseconds: "ms",
		UnitNanoseconds:  "ns",
		UnitMicroseconds: "us",
		UnitMinutes:      "m",
		UnitHours:        "h",
		UnitDays:         "d",
	}

	suffixUnit = map[string]TimeUnit{
		"s":  UnitSeconds,
		"ms": UnitMilliseconds,
		"ns": UnitNanoseconds,
		"us": UnitMicroseconds,
		"μs": UnitMicroseconds,
		"µs": UnitMicroseconds,
		"m":  UnitMinutes,
		"h":  UnitHours,
		"d":  UnitDays,
	}

	unitDuration = map[TimeUnit]time.Duration{
		UnitSeconds:      time.Second,
		UnitMilliseconds: time.Millisecond,
		UnitNanoseconds:  time.Nanosecond,
		UnitMicroseconds: time.Microsecond,
		UnitMinutes:      time.Minute,
		UnitHours:        time.Hour,
		UnitDays:         24 * time.Hour,
	}

	// largest first, used to pick the coarsest exact unit
	durationUnits = []TimeUnit{
		UnitDays, UnitHours, UnitMinutes, UnitSeconds,
		UnitMilliseconds, UnitMicroseconds, UnitNanoseconds,
	}
)

func (u TimeUnit) IsSentinel() bool {
	return u == UnitDefault || u == UnitInfinite
}

func (u TimeUnit) IsValid() bool {
	return u <= UnitInfinite
}

// Expiry is a lifespan or max-idle setting as it travels on the wire.
type Expiry struct {
	Amount int64
	Unit   TimeUnit
}

var (
	DefaultExpiry  = Expiry{Unit: UnitDefault}
	InfiniteExpiry = Expiry{Unit: UnitInfinite}
)

func (e Expiry) String() string {
	switch e.Unit {
	case UnitDefault:
		return "default"
	case UnitInfinite:
		return "infinite"
	}
	return strconv.FormatInt(e.Amount, 10) + unitSuffix[e.Unit]
}

// Duration converts to a time.Duration. Sentinel units convert to 0 and
// negative respectively.
func (e Expiry) Duration() time.Duration {
	switch e.Unit {
	case UnitDefault:
		return 0
	case UnitInfinite:
		return -1
	}
	return time.Duration(e.Amount) * unitDuration[e.Unit]
}

func invalidExpiry(format string, args ...interface{}) error {
	return errors.Newf(errors.KindConfig, "invalid expiry: "+format, args...)
}

// ExpiryFromInt maps a unitless number. Only 0 (default) and negative
// values (infinite) are accepted.
func ExpiryFromInt(n int64) (Expiry, error) {
	switch {
	case n == 0:
		return DefaultExpiry, nil
	case n < 0:
		return InfiniteExpiry, nil
	}
	return Expiry{}, invalidExpiry("%d has no time unit", n)
}

// ExpiryFromDuration uses the coarsest unit that represents d exactly.
func ExpiryFromDuration(d time.Duration) Expiry {
	switch {
	case d == 0:
		return DefaultExpiry
	case d < 0:
		return InfiniteExpiry
	}
	for _, u := range durationUnits {
		if d%unitDuration[u] == 0 {
			return Expiry{Amount: int64(d / unitDuration[u]), Unit: u}
		}
	}
	return Expiry{Amount: int64(d), Unit: UnitNanoseconds}
}

// ParseExpiry parses "<digits><unit>" strings such as "10s", "500ms" or
// "3d". A bare "0" means default and a bare negative number infinite; an
// amount with a unit is unsigned.
func ParseExpiry(s string) (Expiry, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Expiry{}, invalidExpiry("empty string")
	}
	i := 0
	if s[0] == '-' || s[0] == '+' {
		i++
	}
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	num, suffix := s[:i], s[i:]
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return Expiry{}, invalidExpiry("%q", s)
	}
	if suffix == "" {
		return ExpiryFromInt(n)
	}
	unit, ok := suffixUnit[suffix]
	if !ok {
		return Expiry{}, invalidExpiry("unknown unit %q in %q", suffix, s)
	}
	if num[0] < '0' || num[0] > '9' {
		return Expiry{}, invalidExpiry("signed amount in %q", s)
	}
	return Expiry{Amount: n, Unit: unit}, nil
}

func (e Expiry) validate() error {
	if !e.Unit.IsValid() {
		return fmt.Errorf("unit %d out of range", e.Unit)
	}
	if !e.Unit.IsSentinel() && e.Amount < 0 {
		return fmt.Errorf("negative amount %d", e.Amount)
	}
	return nil
}

// WriteExpiry packs both units into one byte and writes the amounts of
// non-sentinel units, lifespan first.
func WriteExpiry(c *ByteCursor, lifespan, maxIdle Expiry) error {
	if err := lifespan.validate(); err != nil {
		return invalidExpiry("lifespan: %s", err)
	}
	if err := maxIdle.validate(); err != nil {
		return invalidExpiry("max idle: %s", err)
	}
	c.WriteByte(byte(lifespan.Unit)<<4 | byte(maxIdle.Unit))
	if !lifespan.Unit.IsSentinel() {
		c.WriteUVarint64(uint64(lifespan.Amount))
	}
	if !maxIdle.Unit.IsSentinel() {
		c.WriteUVarint64(uint64(maxIdle.Amount))
	}
	return nil
}

func ReadExpiry(c *ByteCursor) (lifespan, maxIdle Expiry, err error) {
	var b byte
	if b, err = c.ReadByte(); err != nil {
		return
	}
	lifespan.Unit = TimeUnit(b >> 4)
	maxIdle.Unit = TimeUnit(b & 0x0F)
	if !lifespan.Unit.IsValid() || !maxIdle.Unit.IsValid() {
		err = ErrInvalidTimeUnit
		return
	}
	for _, e := range []*Expiry{&lifespan, &maxIdle} {
		if e.Unit.IsSentinel() {
			continue
		}
		var v uint64
		if v, err = c.ReadUVarint64(); err != nil {
			return
		}
		e.Amount = int64(v)
	}
	return
}
