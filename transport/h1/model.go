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

package h1

import (
	"context"
	"fmt"
	"sync"
	"time"

	libtls "github.com/encode/httpx-go/certificates"
	libdur "github.com/encode/httpx-go/duration"
	liblog "github.com/encode/httpx-go/log"
	"github.com/encode/httpx-go/transport"
)

type connection struct {
	origin transport.Origin
	stream transport.ByteStream

	keepalive *libdur.Duration
	logger    liblog.Logger

	stateLock sync.Mutex
	state     State
	wire      wireState

	requestCount    int
	connectionClose bool
	expireAt        time.Time
	hasExpiry       bool
}

// beginRequest transitions NEW|IDLE -> ACTIVE, or reports that the
// connection is unavailable. The lock is held only around the check, not
// around the I/O that follows.
func (c *connection) beginRequest() error {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()

	if c.state != StateNew && c.state != StateIdle {
		return transport.ErrorConnectionNotAvailable.Error()
	}

	c.state = StateActive
	c.requestCount++
	c.hasExpiry = false
	c.wire.reset()
	c.logger.Debug("connection ", c.origin.String(), " -> ACTIVE")
	return nil
}

func (c *connection) HandleRequest(ctx context.Context, req transport.RawRequest) (transport.RawResponse, error) {
	if err := c.beginRequest(); err != nil {
		return transport.RawResponse{}, err
	}

	resp, err := c.exchange(ctx, req)
	if err != nil {
		c.logger.Warn("connection ", c.origin.String(), " exchange failed: ", err)
		c.Close()
		return transport.RawResponse{}, err
	}

	return resp, nil
}

func (c *connection) exchange(ctx context.Context, req transport.RawRequest) (transport.RawResponse, error) {
	c.wire.send = sendHead
	if err := writeRequestHead(ctx, c.stream, req); err != nil {
		c.wire.send = sendError
		return transport.RawResponse{}, err
	}

	c.wire.send = sendBody
	if err := writeRequestBody(ctx, c.stream, req); err != nil {
		c.wire.send = sendError
		return transport.RawResponse{}, err
	}
	c.wire.send = sendDone

	c.wire.recv = recvHead
	r := newStreamReader(c.stream)
	head, err := readResponseHead(ctx, r)
	if err != nil {
		c.wire.recv = recvError
		return transport.RawResponse{}, err
	}

	c.wire.recv = recvBody
	frame, length, err := pickFraming(head.headers)
	if err != nil {
		c.wire.recv = recvError
		return transport.RawResponse{}, err
	}

	c.connectionClose = connectionCloseRequested(head.headers) || connectionCloseRequested(req.Headers)

	body := &responseBody{
		conn:    c,
		r:       r,
		frame:   frame,
		remain:  length,
		done:    false,
		chunked: frame == framingChunked,
	}

	return transport.RawResponse{
		Status:  head.status,
		Headers: head.headers,
		Stream:  body,
		Extensions: map[string]interface{}{
			"http_version":  head.httpVersion,
			"reason_phrase": head.reasonPhrase,
		},
	}, nil
}

// responseClosed runs once the caller has fully consumed or discarded the
// response body. It decides between resetting to IDLE (armed with a fresh
// keepalive deadline) and closing outright.
func (c *connection) responseClosed(complete bool) {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()

	if c.state == StateClosed {
		return
	}

	if complete {
		c.wire.recv = recvDone
	}

	if c.connectionClose || !c.wire.bothDone() {
		c.closeLocked()
		return
	}

	if c.keepalive == nil {
		c.state = StateIdle
		c.hasExpiry = false
		c.logger.Debug("connection ", c.origin.String(), " -> IDLE (no expiry)")
		return
	}

	c.state = StateIdle
	c.expireAt = monotonicNow().Add(time.Duration(*c.keepalive))
	c.hasExpiry = true
	c.logger.Debug("connection ", c.origin.String(), " -> IDLE, expires at ", c.expireAt)
}

func (c *connection) GetOrigin() transport.Origin {
	return c.origin
}

func (c *connection) IsAvailable() bool {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	return c.state == StateIdle
}

func (c *connection) HasExpired() bool {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()

	if c.state != StateIdle || !c.hasExpiry {
		return false
	}
	return !monotonicNow().Before(c.expireAt)
}

func (c *connection) IsIdle() bool {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	return c.state == StateIdle
}

func (c *connection) IsClosed() bool {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	return c.state == StateClosed
}

func (c *connection) AttemptClose() bool {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()

	if c.state != StateNew && c.state != StateIdle {
		return false
	}
	c.closeLocked()
	return true
}

func (c *connection) Close() error {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	c.closeLocked()
	return nil
}

// closeLocked must be called with stateLock held.
func (c *connection) closeLocked() {
	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	c.hasExpiry = false
	_ = c.stream.Close()
	c.logger.Debug("connection ", c.origin.String(), " -> CLOSED")
}

func (c *connection) Info() string {
	c.stateLock.Lock()
	state := c.state
	count := c.requestCount
	c.stateLock.Unlock()

	return fmt.Sprintf("'%s', HTTP/1.1, %s, Request Count: %d", c.origin.String(), state.String(), count)
}

// responseBody streams the response payload and triggers responseClosed
// exactly once, on the first Close - the body is single-pass.
type responseBody struct {
	conn    *connection
	r       *streamReader
	frame   framing
	remain  int64
	chunked bool
	done    bool
	closed  bool
}

func (b *responseBody) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	if b.done {
		return nil, nil
	}

	switch b.frame {
	case framingContentLength:
		if b.remain == 0 {
			b.done = true
			return nil, nil
		}
		n := maxBytes
		if int64(n) > b.remain {
			n = int(b.remain)
		}
		chunk, err := b.r.readN(ctx, n)
		if err != nil {
			return nil, err
		}
		b.remain -= int64(len(chunk))
		if b.remain == 0 {
			b.done = true
		}
		return chunk, nil

	case framingChunked:
		if b.remain == 0 {
			size, err := readChunkSize(ctx, b.r)
			if err != nil {
				return nil, err
			}
			if size == 0 {
				if err := readTrailers(ctx, b.r); err != nil {
					return nil, err
				}
				b.done = true
				return nil, nil
			}
			b.remain = size
		}

		n := maxBytes
		if int64(n) > b.remain {
			n = int(b.remain)
		}
		chunk, err := b.r.readN(ctx, n)
		if err != nil {
			return nil, err
		}
		b.remain -= int64(len(chunk))
		if b.remain == 0 {
			if _, err := b.r.readN(ctx, 2); err != nil { // trailing CRLF after chunk data
				return nil, err
			}
		}
		return chunk, nil

	default: // framingUntilClose
		chunk, err := b.r.readSome(ctx)
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			b.done = true
		}
		return chunk, nil
	}
}

func (b *responseBody) Write(context.Context, []byte) error {
	return transport.ErrorProtocolError.Errorf("response body does not accept writes")
}

func (b *responseBody) StartTLS(context.Context, libtls.TLSConfig, string) (transport.ByteStream, error) {
	return nil, transport.ErrorUnsupportedProtocol.Error()
}

func (b *responseBody) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.conn.responseClosed(b.done)
	return nil
}
