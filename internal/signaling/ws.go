package signaling

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn serializes outgoing messages on one WebSocket. Reads happen on a
// single goroutine and need no lock.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) read() (Message, error) {
	var msg Message
	err := c.conn.ReadJSON(&msg)
	return msg, err
}

func (c *wsConn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}

// dial connects to the server and waits for the welcome message carrying
// this peer's id.
func dial(ctx context.Context, url string) (*wsConn, uint32, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to connect to signaling server: %w", err)
	}
	c := &wsConn{conn: conn}

	conn.SetReadDeadline(time.Now().Add(writeTimeout))
	msg, err := c.read()
	if err != nil {
		conn.Close()
		return nil, 0, fmt.Errorf("waiting for welcome: %w", err)
	}
	conn.SetReadDeadline(time.Time{})
	if msg.Type != MsgTypeWelcome || msg.Peer == 0 {
		conn.Close()
		return nil, 0, fmt.Errorf("unexpected first message %q", msg.Type)
	}
	return c, msg.Peer, nil
}
