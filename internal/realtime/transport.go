package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one established channel link.
type Conn interface {
	// ReadFrame blocks until a frame arrives or the link fails.
	ReadFrame() (Frame, error)
	WriteFrame(Frame) error
	Close() error
}

// Transport opens channel links.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// ServerClosedError reports that the remote side ended the link.
type ServerClosedError struct {
	Code int
	Text string
}

func (e *ServerClosedError) Error() string {
	return fmt.Sprintf("server closed connection: %d %s", e.Code, e.Text)
}

// IsServerClose reports whether err means the server ended the link.
func IsServerClose(err error) bool {
	var sce *ServerClosedError
	return errors.As(err, &sce)
}

const writeWait = 10 * time.Second

// WSTransport dials a websocket endpoint exchanging JSON frames.
type WSTransport struct {
	URL    string
	Header http.Header
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Dial opens a websocket link.
func (t *WSTransport) Dial(ctx context.Context) (Conn, error) {
	d := t.Dialer
	if d == nil {
		d = websocket.DefaultDialer
	}
	c, resp, err := d.DialContext(ctx, t.URL, t.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.URL, err)
	}
	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn *websocket.Conn
	// gorilla allows one concurrent writer.
	wmu sync.Mutex
}

func (c *wsConn) ReadFrame() (Frame, error) {
	var f Frame
	if err := c.conn.ReadJSON(&f); err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return Frame{}, &ServerClosedError{Code: ce.Code, Text: ce.Text}
		}
		return Frame{}, err
	}
	return f, nil
}

func (c *wsConn) WriteFrame(f Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(f)
}

func (c *wsConn) Close() error {
	c.wmu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.conn.Close()
}
