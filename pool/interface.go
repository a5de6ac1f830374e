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

	libctx "github.com/encode/httpx-go/context"
	liblog "github.com/encode/httpx-go/log"
	"github.com/encode/httpx-go/transport"
)

// Pool assigns RawRequests to persistent HTTP/1.1 connections, honouring
// origin affinity, capacity and keepalive policy.
type Pool interface {
	HandleRequest(ctx context.Context, req transport.RawRequest) (transport.RawResponse, error)
	// PoolInfo returns one descriptor per live connection, MRU-first,
	// formatted as "'<origin>', HTTP/1.1, <STATE>, Request Count: <N>".
	PoolInfo() []string
	// OriginStats returns the number of connections ever opened for
	// origin, or 0 if none were.
	OriginStats(origin transport.Origin) int64
	// Close shuts the pool down: every connection is closed regardless
	// of state and the pool is cleared. Subsequent requests fail.
	Close() error
}

// Options configures a new Pool beyond Config: the network backend (real
// dialer by default, swappable for tests) and the logger.
type Options struct {
	Backend transport.NetworkBackend
	Logger  liblog.Logger
}

func New(cfg Config, opts Options) Pool {
	if opts.Backend == nil {
		opts.Backend = transport.NewStandardBackend(cfg.TLSConfig)
	}
	logger := opts.Logger
	if logger == nil {
		logger = liblog.NoOp()
	}

	cfg.MaxKeepAliveConnections = cfg.clampKeepAlive()

	return &pool{
		cfg:     cfg,
		backend: opts.Backend,
		logger:  logger,
		sem:     newCapacitySemaphore(cfg.MaxConnections),
		stats:   libctx.NewConfig[transport.Origin](nil),
	}
}
