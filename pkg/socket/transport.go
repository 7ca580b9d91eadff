package socket

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is a full-duplex, message-oriented connection carrying text
// frames. The session depends only on this interface so reconnect and
// replay logic can be exercised against a fake transport in tests.
type Transport interface {
	// ReadMessage blocks until the next inbound message or a transport error
	ReadMessage() ([]byte, error)

	// WriteMessage writes one complete text message
	WriteMessage(data []byte) error

	// Close tears down the connection
	Close() error
}

// DialFunc establishes a transport to the given address
type DialFunc func(ctx context.Context, url string) (Transport, error)

// wsTransport adapts a gorilla websocket connection to the Transport
// interface
type wsTransport struct {
	conn *websocket.Conn
}

// DialWebSocket is the default DialFunc, connecting over a real WebSocket
func DialWebSocket(ctx context.Context, url string) (Transport, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	_ = t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closed connection"))
	return t.conn.Close()
}
