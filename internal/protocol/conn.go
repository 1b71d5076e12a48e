package protocol

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxFrameBytes = 16 * 1024
	pingInterval  = 25 * time.Second
	writeWait     = 5 * time.Second
)

// wsConn adapts a *websocket.Conn to hub.Transport. Writes are
// mutex-guarded because gorilla/websocket forbids concurrent writers on one
// connection, and the reader loop, the keep-alive ticker, and other
// goroutines sending through the Hub or Router all write to it.
type wsConn struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	server string
}

func newWSConn(conn *websocket.Conn, server string) *wsConn {
	conn.SetReadLimit(maxFrameBytes)
	return &wsConn{conn: conn, server: server}
}

// Send writes {type, data, timestamp, server} as one JSON text frame.
func (w *wsConn) Send(msgType string, data any) error {
	env := Envelope{Type: msgType, Data: data, Timestamp: time.Now(), Server: w.server}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(env)
}

// CloseWithReason sends a close frame carrying code/reason, then closes the
// underlying TCP connection.
func (w *wsConn) CloseWithReason(code int, reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return w.conn.Close()
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// CloseCodeSuperseded is sent to a device session evicted by a newer
// device_join for the same device id.
const CloseCodeSuperseded = 4000
