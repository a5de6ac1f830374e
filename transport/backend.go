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
	"crypto/tls"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	libtls "github.com/encode/httpx-go/certificates"
)

// zeroTime clears a previously set read/write deadline.
var zeroTime time.Time

// StandardBackend dials plain TCP for "http" origins and TLS-over-TCP for
// "https" origins, optionally over a Unix domain socket when UnixSocket is
// set. It is the default NetworkBackend for a Pool built without one.
type StandardBackend struct {
	// TLSConfig supplies the TLS context used for "https" origins. A nil
	// value means https origins cannot be dialed.
	TLSConfig libtls.TLSConfig
	// UnixSocket, if non-empty, is dialed instead of host:port - the
	// origin's host/port are still used for the Origin key and for the
	// TLS ServerName.
	UnixSocket string
	// Dialer makes the initial connect; its Timeout bounds it.
	Dialer net.Dialer
}

func NewStandardBackend(cfg libtls.TLSConfig) *StandardBackend {
	return &StandardBackend{TLSConfig: cfg}
}

func (b *StandardBackend) Connect(ctx context.Context, origin Origin) (ByteStream, error) {
	network := "tcp"
	addr := net.JoinHostPort(origin.Host, strconv.Itoa(origin.Port))
	if b.UnixSocket != "" {
		network = "unix"
		addr = b.UnixSocket
	}

	conn, err := b.Dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, ErrorConnectFailed.Error(err)
	}

	stream := &netStream{conn: conn}

	if origin.Scheme != "https" {
		return stream, nil
	}

	if b.TLSConfig == nil {
		_ = stream.Close()
		return nil, ErrorTLSHandshakeFailed.Error()
	}

	return stream.StartTLS(ctx, b.TLSConfig, origin.Host)
}

// netStream adapts a net.Conn (plain TCP, Unix, or already-TLS) to
// ByteStream. Read/Write are serialised against Close only to the extent
// net.Conn itself guarantees; callers never invoke them concurrently per
// spec (one exchange at a time).
type netStream struct {
	conn   net.Conn
	mu     sync.Mutex
	closed bool
}

func (s *netStream) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(dl)
	} else {
		_ = s.conn.SetReadDeadline(zeroTime)
	}

	buf := make([]byte, maxBytes)
	n, err := s.conn.Read(buf)
	if n > 0 || err == io.EOF {
		err = nil
	}
	return buf[:n], err
}

func (s *netStream) Write(ctx context.Context, buffer []byte) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(dl)
	} else {
		_ = s.conn.SetWriteDeadline(zeroTime)
	}

	for len(buffer) > 0 {
		n, err := s.conn.Write(buffer)
		if err != nil {
			return err
		}
		buffer = buffer[n:]
	}
	return nil
}

func (s *netStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

func (s *netStream) StartTLS(ctx context.Context, cfg libtls.TLSConfig, serverName string) (ByteStream, error) {
	tlsConn := tls.Client(s.conn, cfg.TLS(serverName))
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = s.Close()
		return nil, ErrorTLSHandshakeFailed.Error(err)
	}
	return &netStream{conn: tlsConn}, nil
}
