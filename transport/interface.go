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

	libtls "github.com/encode/httpx-go/certificates"
)

// ByteStream hides a concrete transport behind four operations. Reads are
// at-most-n: short reads are allowed and a zero-length read means orderly
// EOF. Writes are all-or-error; an implementation loops internally over
// short writes. StartTLS transfers ownership of the connection: once it
// returns, the receiver must not be used again.
type ByteStream interface {
	Read(ctx context.Context, maxBytes int) ([]byte, error)
	Write(ctx context.Context, buffer []byte) error
	Close() error
	StartTLS(ctx context.Context, cfg libtls.TLSConfig, serverName string) (ByteStream, error)
}

// EmptyByteStream is the zero-value body used for requests or responses
// without a payload.
type EmptyByteStream struct{}

func (EmptyByteStream) Read(context.Context, int) ([]byte, error)                        { return nil, nil }
func (EmptyByteStream) Write(context.Context, []byte) error                              { return nil }
func (EmptyByteStream) Close() error                                                     { return nil }
func (EmptyByteStream) StartTLS(context.Context, libtls.TLSConfig, string) (ByteStream, error) {
	return nil, ErrorUnsupportedProtocol.Error()
}

// NetworkBackend opens a new ByteStream to an origin. The default
// implementation dials plain TCP or TLS-over-TCP depending on the origin's
// scheme; tests substitute a MockBackend.
type NetworkBackend interface {
	Connect(ctx context.Context, origin Origin) (ByteStream, error)
}
