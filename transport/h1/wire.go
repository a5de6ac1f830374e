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
	"strconv"
	"strings"

	"github.com/encode/httpx-go/transport"
)

// sendState/recvState are the per-direction wire half-states:
// IDLE -> SEND_HEAD -> SEND_BODY -> DONE (client) and
// IDLE -> RECV_HEAD -> RECV_BODY -> DONE (server), with a terminal ERROR.
type sendState uint8

const (
	sendIdle sendState = iota
	sendHead
	sendBody
	sendDone
	sendError
)

type recvState uint8

const (
	recvIdle recvState = iota
	recvHead
	recvBody
	recvDone
	recvError
)

type wireState struct {
	send sendState
	recv recvState
}

// reset returns both halves to IDLE - only valid when both are DONE.
func (w *wireState) reset() {
	w.send = sendIdle
	w.recv = recvIdle
}

func (w wireState) bothDone() bool {
	return w.send == sendDone && w.recv == recvDone
}

const readBufSize = 64 * 1024

// streamReader buffers reads off a transport.ByteStream so the response
// parser can be fed incrementally and tolerate arbitrarily fragmented
// chunks arriving off the wire.
type streamReader struct {
	stream transport.ByteStream
	buf    []byte
	eof    bool
}

func newStreamReader(s transport.ByteStream) *streamReader {
	return &streamReader{stream: s}
}

func (r *streamReader) fill(ctx context.Context) error {
	if r.eof {
		return nil
	}
	chunk, err := r.stream.Read(ctx, readBufSize)
	if err != nil {
		return err
	}
	if len(chunk) == 0 {
		r.eof = true
		return nil
	}
	r.buf = append(r.buf, chunk...)
	return nil
}

// readLine returns the next CRLF-terminated line, CRLF stripped.
func (r *streamReader) readLine(ctx context.Context) ([]byte, error) {
	for {
		if i := indexCRLF(r.buf); i >= 0 {
			line := r.buf[:i]
			r.buf = r.buf[i+2:]
			return line, nil
		}
		if r.eof {
			return nil, transport.ErrorProtocolError.Errorf("connection closed before a complete header line was received")
		}
		if len(r.buf) > maxHeaderLine {
			return nil, transport.ErrorProtocolError.Errorf("header line exceeds %d bytes", maxHeaderLine)
		}
		if err := r.fill(ctx); err != nil {
			return nil, err
		}
	}
}

const maxHeaderLine = 64 * 1024

func indexCRLF(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' {
			return i
		}
	}
	return -1
}

// readN returns exactly n bytes, blocking on further reads as needed.
func (r *streamReader) readN(ctx context.Context, n int) ([]byte, error) {
	for len(r.buf) < n {
		if r.eof {
			return nil, transport.ErrorProtocolError.Errorf("response body shorter than advertised Content-Length")
		}
		if err := r.fill(ctx); err != nil {
			return nil, err
		}
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out, nil
}

// readSome returns whatever is buffered, filling once if empty. Used for
// read-until-close framing. A zero-length, nil-error result means EOF.
func (r *streamReader) readSome(ctx context.Context) ([]byte, error) {
	if len(r.buf) == 0 && !r.eof {
		if err := r.fill(ctx); err != nil {
			return nil, err
		}
	}
	out := r.buf
	r.buf = nil
	return out, nil
}

// writeRequestHead writes the request line and headers:
// "METHOD SP request-target SP HTTP/1.1 CRLF", then each header, then a
// blank line.
func writeRequestHead(ctx context.Context, stream transport.ByteStream, req transport.RawRequest) error {
	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteByte(' ')
	b.WriteString(req.URL.Target)
	b.WriteString(" HTTP/1.1\r\n")
	for _, h := range req.Headers {
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return stream.Write(ctx, []byte(b.String()))
}

// writeRequestBody frames the body according to the headers the caller
// already set: chunked wins, then Content-Length, then (for a non-empty
// body with neither) an error - a request body can never be framed by
// read-until-close.
func writeRequestBody(ctx context.Context, stream transport.ByteStream, req transport.RawRequest) error {
	chunked := hasTransferEncodingChunked(req.Headers)
	_, hasLength := req.Headers.Get("Content-Length")

	body := req.Stream
	if body == nil {
		body = transport.EmptyByteStream{}
	}

	if !chunked && !hasLength {
		// an empty body is legal without framing headers; only a
		// non-empty body without framing is an error.
		first, err := body.Read(ctx, 1)
		if err != nil {
			return err
		}
		if len(first) == 0 {
			return nil
		}
		return transport.ErrorProtocolError.Errorf("request body is non-empty but neither Transfer-Encoding: chunked nor Content-Length was set")
	}

	for {
		chunk, err := body.Read(ctx, readBufSize)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			break
		}
		if chunked {
			if err := writeChunk(ctx, stream, chunk); err != nil {
				return err
			}
		} else if err := stream.Write(ctx, chunk); err != nil {
			return err
		}
	}

	if chunked {
		return stream.Write(ctx, []byte("0\r\n\r\n"))
	}
	return nil
}

func writeChunk(ctx context.Context, stream transport.ByteStream, data []byte) error {
	head := fmt.Sprintf("%x\r\n", len(data))
	if err := stream.Write(ctx, []byte(head)); err != nil {
		return err
	}
	if err := stream.Write(ctx, data); err != nil {
		return err
	}
	return stream.Write(ctx, []byte("\r\n"))
}

func hasTransferEncodingChunked(h transport.Headers) bool {
	v, ok := h.Get("Transfer-Encoding")
	return ok && strings.Contains(strings.ToLower(v), "chunked")
}

// responseHead is the parsed status line plus headers.
type responseHead struct {
	httpVersion  string
	status       int
	reasonPhrase string
	headers      transport.Headers
}

// readResponseHead parses the status line then headers until a blank line.
func readResponseHead(ctx context.Context, r *streamReader) (responseHead, error) {
	line, err := r.readLine(ctx)
	if err != nil {
		return responseHead{}, err
	}

	parts := strings.SplitN(string(line), " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return responseHead{}, transport.ErrorProtocolError.Errorf("malformed status line %q", string(line))
	}

	status, convErr := strconv.Atoi(parts[1])
	if convErr != nil {
		return responseHead{}, transport.ErrorProtocolError.Errorf("malformed status code %q", parts[1])
	}

	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}

	head := responseHead{httpVersion: parts[0], status: status, reasonPhrase: reason}

	for {
		line, err = r.readLine(ctx)
		if err != nil {
			return responseHead{}, err
		}
		if len(line) == 0 {
			break
		}
		name, value, ok := splitHeaderLine(string(line))
		if !ok {
			return responseHead{}, transport.ErrorProtocolError.Errorf("malformed header line %q", string(line))
		}
		head.headers = append(head.headers, transport.Header{Name: name, Value: value})
	}

	return head, nil
}

func splitHeaderLine(line string) (name, value string, ok bool) {
	i := strings.IndexByte(line, ':')
	if i <= 0 {
		return "", "", false
	}
	return line[:i], strings.TrimSpace(line[i+1:]), true
}

// framing is the response body framing, in precedence order:
// Transfer-Encoding: chunked, then Content-Length, then read-until-close.
type framing uint8

const (
	framingChunked framing = iota
	framingContentLength
	framingUntilClose
)

func pickFraming(h transport.Headers) (framing, int64, error) {
	if hasTransferEncodingChunked(h) {
		return framingChunked, 0, nil
	}
	if v, ok := h.Get("Content-Length"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || n < 0 {
			return 0, 0, transport.ErrorProtocolError.Errorf("malformed Content-Length %q", v)
		}
		return framingContentLength, n, nil
	}
	return framingUntilClose, 0, nil
}

// readChunkSize reads one "HEX-SIZE CRLF" line, tolerating (and
// discarding) chunk extensions after a ';'.
func readChunkSize(ctx context.Context, r *streamReader) (int64, error) {
	line, err := r.readLine(ctx)
	if err != nil {
		return 0, err
	}
	s := string(line)
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 16, 64)
	if err != nil || n < 0 {
		return 0, transport.ErrorProtocolError.Errorf("invalid chunk length %q", s)
	}
	return n, nil
}

// readTrailers consumes (and discards) trailer lines after the final
// chunk; trailers are tolerated but never exposed to the caller.
func readTrailers(ctx context.Context, r *streamReader) error {
	for {
		line, err := r.readLine(ctx)
		if err != nil {
			return err
		}
		if len(line) == 0 {
			return nil
		}
	}
}

func connectionCloseRequested(h transport.Headers) bool {
	return h.Has("Connection", "close")
}
