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

// Package transport provides the wire-level building blocks shared by the
// HTTP/1.1 connection and connection pool: the origin/request/response data
// model and the byte stream adapter that hides plain TCP, TLS, Unix sockets
// and an in-memory mock behind one read/write/close/start_tls contract.
package transport

import (
	"fmt"
)

// Origin is the (scheme, host, port) triple that keys connection reuse.
// Two origins are equal iff all three fields match; it is immutable once
// constructed.
type Origin struct {
	Scheme string
	Host   string
	Port   int
}

func (o Origin) Equal(other Origin) bool {
	return o.Scheme == other.Scheme && o.Host == other.Host && o.Port == other.Port
}

func (o Origin) String() string {
	return fmt.Sprintf("%s://%s:%d", o.Scheme, o.Host, o.Port)
}

// defaultPort returns the scheme-default port, used when RawURL carries none.
func defaultPort(scheme string) int {
	switch scheme {
	case "https":
		return 443
	default:
		return 80
	}
}

// RawURL is the (scheme, host, port?, target) tuple the pool consumes. It
// carries no parsing or percent-encoding logic of its own - that belongs to
// the external collaborator that builds requests.
type RawURL struct {
	Scheme string
	Host   string
	Port   int // zero means "use the scheme default"
	Target string
}

// Origin substitutes the scheme-default port when none was given.
func (u RawURL) Origin() Origin {
	p := u.Port
	if p == 0 {
		p = defaultPort(u.Scheme)
	}
	return Origin{Scheme: u.Scheme, Host: u.Host, Port: p}
}

func (u RawURL) String() string {
	if u.Port == 0 {
		return fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, u.Target)
	}
	return fmt.Sprintf("%s://%s:%d%s", u.Scheme, u.Host, u.Port, u.Target)
}

// Header is a single ordered (name, value) pair. Case and duplicates are
// preserved verbatim as the caller supplied them.
type Header struct {
	Name  string
	Value string
}

type Headers []Header

// Get returns the first matching header value, case-insensitively.
func (h Headers) Get(name string) (string, bool) {
	for _, kv := range h {
		if equalFold(kv.Name, name) {
			return kv.Value, true
		}
	}
	return "", false
}

// Has reports whether any header with the given name and value (both
// case-insensitive) is present - used for "Connection: close" detection.
func (h Headers) Has(name, value string) bool {
	for _, kv := range h {
		if equalFold(kv.Name, name) && equalFold(kv.Value, value) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// RawRequest is immutable once handed to the pool. Stream may be nil, in
// which case it behaves as an empty body.
type RawRequest struct {
	Method     string
	URL        RawURL
	Headers    Headers
	Stream     ByteStream
	Extensions map[string]interface{}
}

func (r RawRequest) body() ByteStream {
	if r.Stream == nil {
		return EmptyByteStream{}
	}
	return r.Stream
}

// RawResponse is returned by a connection's HandleRequest. Extensions carry
// at least "http_version" and "reason_phrase". The body stream is
// single-pass: it must be fully read or closed before the connection it is
// attached to can be reused.
type RawResponse struct {
	Status     int
	Headers    Headers
	Stream     ByteStream
	Extensions map[string]interface{}
}

func (r RawResponse) Close() error {
	if r.Stream == nil {
		return nil
	}
	return r.Stream.Close()
}
