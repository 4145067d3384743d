package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gorelay/internal/packet"
)

// WebSocket carries one frame per binary WebSocket message.
type WebSocket struct {
	conn      *websocket.Conn
	addr      string
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocket wraps an upgraded connection. addr is the peer address as
// seen by the HTTP server, which may differ from the socket address behind
// a proxy.
func NewWebSocket(conn *websocket.Conn, addr string) *WebSocket {
	conn.SetReadLimit(packet.FrameSize)
	if addr == "" {
		addr = conn.RemoteAddr().String()
	}
	return &WebSocket{conn: conn, addr: addr}
}

// DialWebSocket connects to a relay server's /ws endpoint.
func DialWebSocket(ctx context.Context, url string, header http.Header) (*WebSocket, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWebSocket(conn, ""), nil
}

func (w *WebSocket) Send(block []byte) error {
	if err := checkBlock(block); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.BinaryMessage, block)
}

func (w *WebSocket) Receive() ([]byte, error) {
	for {
		kind, data, err := w.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.BinaryMessage || kind == websocket.TextMessage {
			return data, nil
		}
	}
}

// Close sends a normal closure frame and closes the socket.
func (w *WebSocket) Close() error {
	w.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}

func (w *WebSocket) RemoteAddr() string { return w.addr }

func (w *WebSocket) SetReadDeadline(t time.Time) error  { return w.conn.SetReadDeadline(t) }
func (w *WebSocket) SetWriteDeadline(t time.Time) error { return w.conn.SetWriteDeadline(t) }
