package adapter

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WSConn defines the subset of a websocket connection used by the live
// connector, to enable mocking.
type WSConn interface {
	// ReadMessage reads the next message from the connection
	ReadMessage() (messageType int, p []byte, err error)
	// WriteMessage writes a message to the connection
	WriteMessage(messageType int, data []byte) error
	// Close force-closes the underlying connection
	Close() error
}

// WSDialer dials websocket connections
type WSDialer interface {
	Dial(ctx context.Context, url string, header http.Header) (WSConn, error)
}

// RealWSDialer implements WSDialer using gorilla/websocket
type RealWSDialer struct {
	dialer *websocket.Dialer
}

// NewWSDialer creates a websocket dialer with a handshake timeout
func NewWSDialer(handshakeTimeout time.Duration) WSDialer {
	return &RealWSDialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

func (d *RealWSDialer) Dial(ctx context.Context, url string, header http.Header) (WSConn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}
