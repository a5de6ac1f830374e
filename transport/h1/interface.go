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

// Package h1 drives exactly one HTTP/1.1 exchange at a time over an owned
// transport.ByteStream and exposes the pool-facing lifecycle a
// connection pool needs to decide reuse, eviction and expiry.
package h1

import (
	"context"
	"time"

	libdur "github.com/encode/httpx-go/duration"
	liblog "github.com/encode/httpx-go/log"
	"github.com/encode/httpx-go/transport"
)

// State is the connection's coarse lifecycle, independent of which half of
// the wire conversation is in flight.
type State uint8

const (
	StateNew State = iota
	StateActive
	StateIdle
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateActive:
		return "ACTIVE"
	case StateIdle:
		return "IDLE"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Connection owns one transport.ByteStream and drives HTTP/1.1 exchanges
// over it one at a time.
type Connection interface {
	// HandleRequest sends req and returns the response. It transitions
	// NEW|IDLE -> ACTIVE; any other starting state fails immediately with
	// transport.ErrorConnectionNotAvailable and has no side effect. Any
	// failure past the transition moves the connection to CLOSED.
	HandleRequest(ctx context.Context, req transport.RawRequest) (transport.RawResponse, error)

	GetOrigin() transport.Origin
	// IsAvailable reports whether the connection may be handed to a new
	// acquirer: true only in StateIdle. A NEW connection is not available.
	IsAvailable() bool
	HasExpired() bool
	IsIdle() bool
	IsClosed() bool
	// AttemptClose closes the connection only if it is idle or never
	// used, returning whether it did. Safe for concurrent use by the pool.
	AttemptClose() bool
	// Close unconditionally closes the connection. Callers must not
	// invoke it concurrently with HandleRequest.
	Close() error
	// Info renders "'<origin>', HTTP/1.1, <STATE>, Request Count: <N>".
	Info() string
}

// Options configures a new connection. With a KeepAliveExpiry of zero the
// connection goes IDLE when an exchange completes and HasExpired reports
// true at once; the connection does not close itself. A nil/unset expiry
// (use NeverExpire) means the connection never expires on its own.
type Options struct {
	KeepAliveExpiry *libdur.Duration
	Logger          liblog.Logger
}

// NeverExpire is a sentinel meaning "no keepalive expiry at all", distinct
// from a zero-valued Duration (which expires every connection immediately).
var NeverExpire *libdur.Duration = nil

func New(origin transport.Origin, stream transport.ByteStream, opts Options) Connection {
	logger := opts.Logger
	if logger == nil {
		logger = liblog.NoOp()
	}

	return &connection{
		origin:    origin,
		stream:    stream,
		keepalive: opts.KeepAliveExpiry,
		logger:    logger,
		state:     StateNew,
	}
}

func monotonicNow() time.Time {
	return time.Now()
}
