// Package http1 implements HTTP/1.1 request framing on top of the
// per-connection buffers.
//
// A request is parsed incrementally: every Step consumes whatever has arrived
// in the inbound buffer, records its progress in a State and returns without
// blocking when more bytes are needed. Once the whole request is available it
// is passed to an http.Handler and the serialized response is pushed into the
// outbound buffer.
//
// Pipelined requests are not supported: bytes following a complete request
// are discarded when the response is sent.
package http1

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/marmos91/evnet/pkg/buffer"
	"github.com/marmos91/evnet/pkg/connection"
)

// Intermediate statuses, all below connection.StatusComplete.
const (
	StatusAwaitingHeaders connection.Status = 10
	StatusAwaitingBody    connection.Status = 20
	StatusAwaitingChunks  connection.Status = 30
	StatusReady           connection.Status = 40
)

// RequestType classifies how the request body is framed.
type RequestType int

const (
	RequestInvalid RequestType = iota
	RequestHeaderOnly
	RequestFixedLength
	RequestChunked
)

func (t RequestType) String() string {
	switch t {
	case RequestHeaderOnly:
		return "header-only"
	case RequestFixedLength:
		return "fixed-length"
	case RequestChunked:
		return "chunked"
	default:
		return "invalid"
	}
}

var (
	crlf     = []byte("\r\n")
	crlfcrlf = []byte("\r\n\r\n")
)

// maxChunkLine bounds a chunk-size line including extensions.
const maxChunkLine = 4096

type chunkPhase int

const (
	chunkSize chunkPhase = iota
	chunkData
	chunkDataCRLF
	chunkTrailer
)

// State is the resumable request parser.
type State struct {
	connection.BaseState

	request     *http.Request
	requestType RequestType

	// pos is the offset in the inbound buffer up to which bytes have been
	// consumed.
	pos  int
	body bytes.Buffer

	phase     chunkPhase
	remaining int64
}

// NewState creates a State reporting to server.
func NewState(server connection.Server) *State {
	s := &State{}
	s.Init(server)
	return s
}

// Request returns the parsed request once the header block is complete.
func (s *State) Request() *http.Request {
	return s.request
}

// RequestType returns the body framing detected from the headers.
func (s *State) RequestType() RequestType {
	return s.requestType
}

// Body returns the decoded body received so far.
func (s *State) Body() []byte {
	return s.body.Bytes()
}

// Release drops the parsed request and the decoded body.
func (s *State) Release() {
	s.request = nil
	s.body = bytes.Buffer{}
	s.BaseState.Release()
}

func malformed(format string, v ...any) error {
	return fmt.Errorf("%w: %s", connection.ErrMalformedMessage, fmt.Sprintf(format, v...))
}

// parseHeaders looks for the end of the header block. It reports false when
// more bytes are needed.
func (s *State) parseHeaders(in *buffer.Chunked, cfg Config) (bool, error) {
	end := in.IndexOf(0, crlfcrlf)
	if end < 0 {
		if in.Len() > cfg.MaxHeaderBytes {
			return false, malformed("header block exceeds %d bytes", cfg.MaxHeaderBytes)
		}
		return false, nil
	}

	headerLen := end + len(crlfcrlf)
	if headerLen > cfg.MaxHeaderBytes {
		return false, malformed("header block of %d bytes exceeds %d", headerLen, cfg.MaxHeaderBytes)
	}

	raw := in.Slice(0, headerLen)
	if len(bytes.TrimSpace(raw)) == 0 {
		return false, connection.ErrNoMessage
	}

	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return false, malformed("%v", err)
	}

	s.request = req
	s.pos = headerLen

	switch {
	case isChunked(req):
		s.requestType = RequestChunked
	case req.ContentLength > 0:
		if req.ContentLength > cfg.MaxBodyBytes {
			return false, malformed("content length %d exceeds %d", req.ContentLength, cfg.MaxBodyBytes)
		}
		s.requestType = RequestFixedLength
	default:
		s.requestType = RequestHeaderOnly
	}

	return true, nil
}

func isChunked(req *http.Request) bool {
	return len(req.TransferEncoding) > 0 && strings.EqualFold(req.TransferEncoding[0], "chunked")
}

// readFixedBody reports whether Content-Length bytes are available.
func (s *State) readFixedBody(in *buffer.Chunked) bool {
	n := int(s.request.ContentLength)
	if in.Len()-s.pos < n {
		return false
	}
	s.body.Write(in.Slice(s.pos, n))
	s.pos += n
	return true
}

// readChunks decodes as much of a chunked body as is available. It reports
// true once the terminating chunk and trailer have been consumed.
func (s *State) readChunks(in *buffer.Chunked, cfg Config) (bool, error) {
	for {
		switch s.phase {
		case chunkSize:
			idx := in.IndexOf(s.pos, crlf)
			if idx < 0 {
				if in.Len()-s.pos > maxChunkLine {
					return false, malformed("chunk size line too long")
				}
				return false, nil
			}
			line := string(in.Slice(s.pos, idx-s.pos))
			if i := strings.IndexByte(line, ';'); i >= 0 {
				line = line[:i]
			}
			size, err := strconv.ParseInt(strings.TrimSpace(line), 16, 64)
			if err != nil || size < 0 {
				return false, malformed("invalid chunk size %q", line)
			}
			if int64(s.body.Len())+size > cfg.MaxBodyBytes {
				return false, malformed("chunked body exceeds %d bytes", cfg.MaxBodyBytes)
			}
			s.pos = idx + len(crlf)
			if size == 0 {
				s.phase = chunkTrailer
			} else {
				s.remaining = size
				s.phase = chunkData
			}

		case chunkData:
			avail := in.Len() - s.pos
			if avail == 0 {
				return false, nil
			}
			n := int64(avail)
			if n > s.remaining {
				n = s.remaining
			}
			s.body.Write(in.Slice(s.pos, int(n)))
			s.pos += int(n)
			s.remaining -= n
			if s.remaining == 0 {
				s.phase = chunkDataCRLF
			}

		case chunkDataCRLF:
			if in.Len()-s.pos < len(crlf) {
				return false, nil
			}
			if !bytes.Equal(in.Slice(s.pos, len(crlf)), crlf) {
				return false, malformed("missing CRLF after chunk data")
			}
			s.pos += len(crlf)
			s.phase = chunkSize

		case chunkTrailer:
			idx := in.IndexOf(s.pos, crlf)
			if idx < 0 {
				if in.Len()-s.pos > cfg.MaxHeaderBytes {
					return false, malformed("trailer exceeds %d bytes", cfg.MaxHeaderBytes)
				}
				return false, nil
			}
			blank := idx == s.pos
			s.pos = idx + len(crlf)
			if blank {
				return true, nil
			}
		}
	}
}

// fail moves the state to connection.StatusError and returns err.
func (s *State) fail(err error) error {
	s.Advance(connection.StatusError)
	return err
}

// keepAlive reports whether the connection may serve another request.
func (s *State) keepAlive() bool {
	return s.request != nil && !s.request.Close
}

var (
	errNoState = errors.New("http1: no processing state attached")
	errFailed  = fmt.Errorf("%w: request already failed", connection.ErrMalformedMessage)
)
