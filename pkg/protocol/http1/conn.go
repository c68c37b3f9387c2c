package http1

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/marmos91/evnet/internal/logger"
	"github.com/marmos91/evnet/pkg/connection"
)

// Conn drives the HTTP/1.1 state machine for one socket.
type Conn struct {
	sock    connection.Socket
	handler http.Handler
	config  Config
	state   *State
}

func (c *Conn) SetProcessingState(state connection.ProcessingState) {
	st, ok := state.(*State)
	if !ok {
		panic(fmt.Sprintf("http1: unexpected processing state %T", state))
	}
	c.state = st
}

// Step advances the request as far as the buffered bytes allow.
func (c *Conn) Step(ctx context.Context) error {
	st := c.state
	if st == nil {
		return errNoState
	}
	in := st.RequestBuffer()

	for {
		switch st.Status() {
		case connection.StatusInitial, StatusAwaitingHeaders:
			ok, err := st.parseHeaders(in, c.config)
			if err != nil {
				return st.fail(err)
			}
			if !ok {
				st.Advance(StatusAwaitingHeaders)
				return nil
			}
			switch st.requestType {
			case RequestFixedLength:
				st.Advance(StatusAwaitingBody)
			case RequestChunked:
				st.Advance(StatusAwaitingChunks)
			default:
				st.Advance(StatusReady)
			}

		case StatusAwaitingBody:
			if !st.readFixedBody(in) {
				return nil
			}
			st.Advance(StatusReady)

		case StatusAwaitingChunks:
			done, err := st.readChunks(in, c.config)
			if err != nil {
				return st.fail(err)
			}
			if !done {
				return nil
			}
			st.Advance(StatusReady)

		case StatusReady:
			c.serve(ctx, st)
			st.Advance(connection.StatusComplete)
			return nil

		case connection.StatusError:
			return errFailed

		default:
			return nil
		}
	}
}

// serve runs the handler and pushes the serialized response.
func (c *Conn) serve(ctx context.Context, st *State) {
	req := st.request.WithContext(ctx)
	req.Body = io.NopCloser(bytes.NewReader(st.body.Bytes()))
	req.ContentLength = int64(st.body.Len())
	req.TransferEncoding = nil
	if addr := c.sock.RemoteAddr(); addr != nil {
		req.RemoteAddr = addr.String()
	}

	w := newResponseWriter()
	c.handler.ServeHTTP(w, req)

	keepAlive := st.keepAlive()
	w.serialize(st.ResponseBuffer(), req, keepAlive)

	if !keepAlive {
		if closer, ok := c.sock.(connection.CloseAfterSender); ok {
			closer.CloseAfterSend()
		}
	}

	if logger.IsDebug() {
		logger.Debug("http1: %s %s -> %d (%s, %d body bytes, fd=%d)",
			req.Method, req.URL.RequestURI(), w.status, st.requestType, st.body.Len(), c.sock.FD())
	}
}
