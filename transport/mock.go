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

package transport

import (
	"context"
	"sync"

	libtls "github.com/encode/httpx-go/certificates"
)

// MockBackend serves a fixed NetworkBackend.Connect result - every call
// returns a fresh MockStream built from Script. It exists so the connection
// and pool can be exercised without touching the network.
type MockBackend struct {
	// Script is the cyclic sequence of byte chunks replayed by every
	// stream this backend connects. A typical script is one HTTP/1.1
	// response split into one or more chunks.
	Script [][]byte
	// ConnectErr, if set, is returned instead of a stream.
	ConnectErr error
}

func (b *MockBackend) Connect(_ context.Context, _ Origin) (ByteStream, error) {
	if b.ConnectErr != nil {
		return nil, b.ConnectErr
	}
	return NewMockStream(b.Script), nil
}

// MockStream is an in-memory ByteStream that replays a pre-recorded script
// of byte chunks cyclically (so the same mock can back more than one
// keep-alive exchange in a test) and records everything written to it.
type MockStream struct {
	mu       sync.Mutex
	script   [][]byte
	pos      int
	offset   int
	closed   bool
	Written  []byte
	OnClose  func()
	tlsAfter bool
}

func NewMockStream(script [][]byte) *MockStream {
	return &MockStream{script: script}
}

func (m *MockStream) Read(_ context.Context, maxBytes int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil
	}
	if len(m.script) == 0 {
		return nil, nil
	}

	chunk := m.script[m.pos]
	if m.offset >= len(chunk) {
		m.pos = (m.pos + 1) % len(m.script)
		m.offset = 0
		chunk = m.script[m.pos]
	}

	end := m.offset + maxBytes
	if end > len(chunk) {
		end = len(chunk)
	}
	out := chunk[m.offset:end]
	m.offset = end
	return out, nil
}

func (m *MockStream) Write(_ context.Context, buffer []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrorConnectFailed.Error()
	}
	m.Written = append(m.Written, buffer...)
	return nil
}

func (m *MockStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.OnClose != nil {
		m.OnClose()
	}
	return nil
}

func (m *MockStream) StartTLS(_ context.Context, _ libtls.TLSConfig, _ string) (ByteStream, error) {
	m.mu.Lock()
	m.tlsAfter = true
	m.mu.Unlock()
	return m, nil
}
