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

package pool

import (
	"context"
	"sync"

	libtls "github.com/encode/httpx-go/certificates"
	libctx "github.com/encode/httpx-go/context"
	liberr "github.com/encode/httpx-go/errors"
	errpool "github.com/encode/httpx-go/errors/pool"
	liblog "github.com/encode/httpx-go/log"
	"github.com/encode/httpx-go/transport"
	"github.com/encode/httpx-go/transport/h1"
)

type pool struct {
	cfg     Config
	backend transport.NetworkBackend
	logger  liblog.Logger
	sem     *capacitySemaphore
	stats   libctx.Config[transport.Origin]

	mu     sync.Mutex
	conns  []h1.Connection // MRU-first
	closed bool
}

func (p *pool) HandleRequest(ctx context.Context, req transport.RawRequest) (transport.RawResponse, error) {
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return transport.RawResponse{}, transport.ErrorUnsupportedProtocol.Error()
	}

	p.mu.Lock()
	shutDown := p.closed
	p.mu.Unlock()
	if shutDown {
		return transport.RawResponse{}, transport.ErrorConnectionNotAvailable.Error()
	}

	origin := req.URL.Origin()

	for {
		if conn, ok := p.acquireReusable(origin); ok {
			resp, err := conn.HandleRequest(ctx, req)
			if err != nil {
				if liberr.IsCode(err, transport.ErrorConnectionNotAvailable) {
					continue
				}
				p.responseClosed(conn)
				return transport.RawResponse{}, err
			}
			return p.wrapResponse(resp, conn), nil
		}

		conn, err := p.acquireNew(ctx, origin)
		if err != nil {
			return transport.RawResponse{}, err
		}

		resp, err := conn.HandleRequest(ctx, req)
		if err != nil {
			if liberr.IsCode(err, transport.ErrorConnectionNotAvailable) {
				continue
			}
			p.responseClosed(conn)
			return transport.RawResponse{}, err
		}
		return p.wrapResponse(resp, conn), nil
	}
}

// acquireReusable is step 1 of the acquisition algorithm: scan for an
// available connection of this origin and move it to the front (MRU).
func (p *pool) acquireReusable(origin transport.Origin) (h1.Connection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, c := range p.conns {
		if c.GetOrigin().Equal(origin) && c.IsAvailable() && !c.HasExpired() {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			p.conns = append([]h1.Connection{c}, p.conns...)
			return c, true
		}
	}
	return nil, false
}

// acquireNew is steps 2-4: obtain a capacity permit (evicting an idle
// connection first if the pool is full) then create and insert a new
// connection at the front of the pool.
func (p *pool) acquireNew(ctx context.Context, origin transport.Origin) (h1.Connection, error) {
	for {
		if p.sem.tryAcquire() {
			break
		}
		if p.closeOneIdleConnection() {
			continue
		}
		if err := p.sem.acquire(ctx); err != nil {
			return nil, transport.ErrorPoolTimeout.Error(err)
		}
		break
	}

	stream, err := p.backend.Connect(ctx, origin)
	if err != nil {
		p.sem.release()
		p.logger.Warn("failed to connect to ", origin.String(), ": ", err)
		return nil, err
	}

	conn := h1.New(origin, stream, h1.Options{
		KeepAliveExpiry: p.cfg.KeepAliveExpiry,
		Logger:          p.logger,
	})

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.release()
		_ = conn.Close()
		return nil, transport.ErrorConnectionNotAvailable.Error()
	}
	p.conns = append([]h1.Connection{conn}, p.conns...)
	p.mu.Unlock()

	p.bumpOriginStats(origin)
	p.logger.Debug("opened new connection to ", origin.String())

	return conn, nil
}

func (p *pool) bumpOriginStats(origin transport.Origin) {
	if v, ok := p.stats.Load(origin); ok {
		if n, casted := v.(int64); casted {
			p.stats.Store(origin, n+1)
			return
		}
	}
	p.stats.Store(origin, int64(1))
}

func (p *pool) OriginStats(origin transport.Origin) int64 {
	if v, ok := p.stats.Load(origin); ok {
		if n, casted := v.(int64); casted {
			return n
		}
	}
	return 0
}

type pooledBody struct {
	inner transport.ByteStream
	pool  *pool
	conn  h1.Connection
	once  sync.Once
}

func (p *pool) wrapResponse(resp transport.RawResponse, conn h1.Connection) transport.RawResponse {
	resp.Stream = &pooledBody{inner: resp.Stream, pool: p, conn: conn}
	return resp
}

func (b *pooledBody) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	return b.inner.Read(ctx, maxBytes)
}

func (b *pooledBody) Write(ctx context.Context, buf []byte) error {
	return b.inner.Write(ctx, buf)
}

func (b *pooledBody) StartTLS(context.Context, libtls.TLSConfig, string) (transport.ByteStream, error) {
	return nil, transport.ErrorUnsupportedProtocol.Error()
}

func (b *pooledBody) Close() error {
	err := b.inner.Close()
	b.once.Do(func() {
		b.pool.responseClosed(b.conn)
	})
	return err
}

// responseClosed is the pool's response_closed(connection) callback: it
// reclaims or drops the connection, sweeps expired idle connections, then
// trims surplus idle connections down to max_keepalive_connections.
func (p *pool) responseClosed(conn h1.Connection) {
	p.mu.Lock()
	if conn.IsClosed() {
		p.removeLocked(conn)
		p.mu.Unlock()
		p.sem.release()
	} else {
		p.mu.Unlock()
	}

	p.closeExpiredConnections()

	for p.countIdle() > p.cfg.MaxKeepAliveConnections {
		if !p.closeOneIdleConnection() {
			break
		}
	}
}

func (p *pool) countIdle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.conns {
		if c.IsIdle() {
			n++
		}
	}
	return n
}

func (p *pool) closeExpiredConnections() {
	p.mu.Lock()
	var expired []h1.Connection
	for _, c := range p.conns {
		if c.IsIdle() && c.HasExpired() {
			expired = append(expired, c)
		}
	}
	p.mu.Unlock()

	for _, c := range expired {
		if c.AttemptClose() {
			p.mu.Lock()
			p.removeLocked(c)
			p.mu.Unlock()
			p.sem.release()
			p.logger.Debug("evicted expired idle connection to ", c.GetOrigin().String())
		}
	}
}

// closeOneIdleConnection walks LRU to MRU, closing the first connection
// that attempt_close succeeds on.
func (p *pool) closeOneIdleConnection() bool {
	p.mu.Lock()
	conns := make([]h1.Connection, len(p.conns))
	copy(conns, p.conns)
	p.mu.Unlock()

	for i := len(conns) - 1; i >= 0; i-- {
		c := conns[i]
		if c.AttemptClose() {
			p.mu.Lock()
			p.removeLocked(c)
			p.mu.Unlock()
			p.sem.release()
			p.logger.Debug("evicted surplus idle connection to ", c.GetOrigin().String())
			return true
		}
	}
	return false
}

// removeLocked must be called with mu held.
func (p *pool) removeLocked(conn h1.Connection) {
	for i, c := range p.conns {
		if c == conn {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			return
		}
	}
}

func (p *pool) PoolInfo() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.conns))
	for _, c := range p.conns {
		out = append(out, c.Info())
	}
	return out
}

func (p *pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	errs := errpool.New()
	for _, c := range p.conns {
		errs.Add(c.Close())
		p.sem.release()
	}
	p.conns = nil
	return errs.Error()
}
