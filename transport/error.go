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

import "github.com/encode/httpx-go/errors"

// Error codes for the byte stream adapter and the HTTP/1.1 connection that
// sits on top of it. The pool recovers ConnectionNotAvailable while it
// places a request; it also returns it to the caller for a request made
// after the pool was closed. The rest propagate.
const (
	ErrorUnsupportedProtocol errors.CodeError = iota + errors.MinPkgTransport
	ErrorConnectionNotAvailable
	ErrorProtocolError
	ErrorPoolTimeout
	ErrorConnectFailed
	ErrorTLSHandshakeFailed
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorUnsupportedProtocol)
	errors.RegisterIdFctMessage(ErrorUnsupportedProtocol, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UNK_ERROR:
		return ""
	case ErrorUnsupportedProtocol:
		return "request url has an unsupported scheme, expecting 'http' or 'https'"
	case ErrorConnectionNotAvailable:
		return "connection is not available to handle a new request"
	case ErrorProtocolError:
		return "malformed or invalid HTTP/1.1 wire data"
	case ErrorPoolTimeout:
		return "timed out waiting for a connection pool permit"
	case ErrorConnectFailed:
		return "cannot establish network connection to origin"
	case ErrorTLSHandshakeFailed:
		return "TLS handshake with origin failed"
	}

	return ""
}
