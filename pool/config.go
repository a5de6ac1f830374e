/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package pool implements the HTTP/1.1 connection pool: origin-keyed reuse,
// MRU/LRU ordering, capacity accounting via a weighted semaphore, keepalive
// eviction, and the pool-owning response body wrapper.
package pool

import (
	libtls "github.com/encode/httpx-go/certificates"
	libdur "github.com/encode/httpx-go/duration"

	"github.com/go-playground/validator/v10"
)

// Config mirrors the enumerated configuration surface: max_connections,
// max_keepalive_connections (clamped <= max_connections-1), keepalive_expiry
// and an optional TLS context for https origins.
type Config struct {
	MaxConnections          int              `json:"max_connections" yaml:"max_connections" toml:"max_connections" mapstructure:"max_connections" validate:"required,gt=0"`
	MaxKeepAliveConnections int              `json:"max_keepalive_connections" yaml:"max_keepalive_connections" toml:"max_keepalive_connections" mapstructure:"max_keepalive_connections" validate:"gte=0"`
	KeepAliveExpiry         *libdur.Duration `json:"keepalive_expiry,omitempty" yaml:"keepalive_expiry,omitempty" toml:"keepalive_expiry,omitempty" mapstructure:"keepalive_expiry"`
	TLSConfig               libtls.TLSConfig `json:"-" yaml:"-" toml:"-" mapstructure:"-"`
}

// DefaultConfig returns max_connections=10, max_keepalive_connections=9,
// keepalive_expiry unset (never expire).
func DefaultConfig() Config {
	return Config{
		MaxConnections:          10,
		MaxKeepAliveConnections: 9,
	}
}

func (c Config) Validate() error {
	return validator.New().Struct(c)
}

// clampKeepAlive enforces max_keepalive_connections <= max_connections-1 so
// eviction can always free a slot.
func (c Config) clampKeepAlive() int {
	ceiling := c.MaxConnections - 1
	if ceiling < 0 {
		ceiling = 0
	}
	if c.MaxKeepAliveConnections > ceiling {
		return ceiling
	}
	return c.MaxKeepAliveConnections
}
