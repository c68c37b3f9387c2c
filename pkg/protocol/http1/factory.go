package http1

import (
	"net/http"

	"github.com/marmos91/evnet/pkg/connection"
)

// Factory implements connection.Factory for HTTP/1.1.
type Factory struct {
	handler http.Handler
	config  Config
}

// NewFactory creates a Factory serving requests with handler. Zero config
// values are defaulted.
func NewFactory(handler http.Handler, config Config) *Factory {
	if handler == nil {
		panic("http1: nil handler")
	}
	config.applyDefaults()
	return &Factory{handler: handler, config: config}
}

func (f *Factory) NewConnection(sock connection.Socket) connection.Connection {
	return &Conn{sock: sock, handler: f.handler, config: f.config}
}

func (f *Factory) NewConnectionWithState(sock connection.Socket, state connection.ProcessingState) connection.Connection {
	conn := &Conn{sock: sock, handler: f.handler, config: f.config}
	conn.SetProcessingState(state)
	return conn
}

func (f *Factory) NewProcessingState(server connection.Server) connection.ProcessingState {
	return NewState(server)
}
