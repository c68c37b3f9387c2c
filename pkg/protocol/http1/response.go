package http1

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/marmos91/evnet/pkg/buffer"
)

// responseWriter buffers a complete response so it can be serialized into
// the outbound buffer in one piece.
type responseWriter struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newResponseWriter() *responseWriter {
	return &responseWriter{header: make(http.Header)}
}

func (w *responseWriter) Header() http.Header {
	return w.header
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
}

func (w *responseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if !bodyAllowed(w.status) {
		return 0, http.ErrBodyNotAllowed
	}
	return w.body.Write(p)
}

func bodyAllowed(status int) bool {
	return !(status >= 100 && status < 200) && status != http.StatusNoContent && status != http.StatusNotModified
}

// serialize writes the status line, headers and body into out.
func (w *responseWriter) serialize(out *buffer.Chunked, req *http.Request, keepAlive bool) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}

	h := w.header
	if h.Get("Date") == "" {
		h.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	if bodyAllowed(w.status) {
		if w.body.Len() > 0 && h.Get("Content-Type") == "" {
			h.Set("Content-Type", http.DetectContentType(w.body.Bytes()))
		}
		if h.Get("Content-Length") == "" {
			h.Set("Content-Length", strconv.Itoa(w.body.Len()))
		}
	}
	h.Del("Transfer-Encoding")
	if keepAlive {
		h.Set("Connection", "keep-alive")
	} else {
		h.Set("Connection", "close")
	}

	var head bytes.Buffer
	fmt.Fprintf(&head, "HTTP/1.1 %d %s\r\n", w.status, http.StatusText(w.status))
	_ = h.Write(&head)
	head.WriteString("\r\n")
	out.Push(head.Bytes())

	if req.Method != http.MethodHead && w.body.Len() > 0 {
		out.Push(w.body.Bytes())
	}
}
