// Package gorilla implements the ports.Channel transport on
// gorilla/websocket. The connection manager owns redial policy and framing
// semantics; this adapter owns only the socket.
package gorilla

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatforge/realtime-console/internal/core/ports"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to complete the opening handshake.
	handshakeTimeout = 10 * time.Second
)

// NewDialer returns a Dialer backed by gorilla/websocket.
func NewDialer() ports.Dialer {
	return ports.DialerFunc(func(ctx context.Context, url string, protocols []string) (ports.Channel, error) {
		dialer := websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			Subprotocols:     protocols,
		}

		conn, resp, err := dialer.DialContext(ctx, url, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			return nil, err
		}
		return &channel{conn: conn}, nil
	})
}

type channel struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *channel) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *channel) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *channel) Close(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		)
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
