package client

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

func dialWebSocket(target string) (io.ReadWriteCloser, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: dialTimeout,
	}
	conn, _, err := dialer.Dial(target, nil)
	if err != nil {
		return nil, err
	}
	return &wsClientConn{conn: conn}, nil
}

// wsClientConn presents a WebSocket as a newline-delimited byte stream. Each
// text message carries one line.
type wsClientConn struct {
	conn    *websocket.Conn
	buf     bytes.Buffer
	writeMu sync.Mutex
}

func (c *wsClientConn) Read(p []byte) (int, error) {
	for c.buf.Len() == 0 {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return 0, io.EOF
			}
			return 0, err
		}
		c.buf.Write(data)
		if !bytes.HasSuffix(data, []byte("\n")) {
			c.buf.WriteByte('\n')
		}
	}
	return c.buf.Read(p)
}

func (c *wsClientConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for _, line := range bytes.Split(bytes.TrimSuffix(p, []byte("\n")), []byte("\n")) {
		if err := c.conn.WriteMessage(websocket.TextMessage, line); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (c *wsClientConn) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}
