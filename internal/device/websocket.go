package device

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket talks to devices exposed as websocket endpoints: commands go out
// as text frames and every frame received is device output.
type WebSocket struct {
	urls   map[string]string
	dialer websocket.Dialer
	// Quiet is the idle time that ends the output of a command.
	Quiet time.Duration

	mu      sync.Mutex
	conns   map[string]*wsConn
	current *wsConn
}

type wsConn struct {
	name       string
	conn       *websocket.Conn
	mu         sync.Mutex
	closed     bool
	messagesCh chan []byte
	buffer     string
}

// NewWebSocket creates a session; urls maps device names to endpoints.
func NewWebSocket(urls map[string]string) *WebSocket {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	return &WebSocket{
		urls:   urls,
		dialer: dialer,
		Quiet:  300 * time.Millisecond,
		conns:  make(map[string]*wsConn),
	}
}

func (w *WebSocket) SwitchDevice(ctx context.Context, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if c, ok := w.conns[name]; ok && !c.isClosed() {
		w.current = c
		return nil
	}
	url, ok := w.urls[name]
	if !ok {
		return fmt.Errorf("%w: no url configured for device %q", ErrFatal, name)
	}
	conn, _, err := w.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrFatal, name, err)
	}

	c := &wsConn{
		name:       name,
		conn:       conn,
		messagesCh: make(chan []byte, 100),
	}
	go c.readMessages()
	w.conns[name] = c
	w.current = c
	return nil
}

func (w *WebSocket) active() (*wsConn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return nil, fmt.Errorf("%w: no device selected", ErrFatal)
	}
	return w.current, nil
}

// SendCommand writes text and collects output until the line goes quiet.
func (w *WebSocket) SendCommand(ctx context.Context, text string) (string, error) {
	c, err := w.active()
	if err != nil {
		return "", err
	}
	if err := c.send(text + "\n"); err != nil {
		return "", err
	}

	var out string
	idle := time.NewTimer(w.Quiet)
	defer idle.Stop()
	for {
		select {
		case msg, ok := <-c.messagesCh:
			if !ok {
				c.buffer += out
				return out, fmt.Errorf("%w: connection to %s closed", ErrFatal, c.name)
			}
			out += string(msg)
			idle.Reset(w.Quiet)
		case <-idle.C:
			c.buffer += out
			return out, nil
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
}

// AwaitPattern waits up to timeout for pattern to appear in the output.
func (w *WebSocket) AwaitPattern(ctx context.Context, pattern string, timeout time.Duration, clear bool) (bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	c, err := w.active()
	if err != nil {
		return false, err
	}
	if clear {
		c.buffer = ""
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if loc := re.FindStringIndex(c.buffer); loc != nil {
			c.buffer = c.buffer[loc[1]:]
			return true, nil
		}
		select {
		case msg, ok := <-c.messagesCh:
			if !ok {
				return false, fmt.Errorf("%w: connection to %s closed", ErrFatal, c.name)
			}
			c.buffer += string(msg)
		case <-deadline.C:
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// Close shuts every device connection.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var first error
	for name, c := range w.conns {
		if err := c.close(); err != nil && first == nil {
			first = err
		}
		delete(w.conns, name)
	}
	w.current = nil
	return first
}

func (c *wsConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *wsConn) send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: connection to %s is closed", ErrFatal, c.name)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("%w: write to %s: %v", ErrFatal, c.name, err)
	}
	return nil
}

func (c *wsConn) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// readMessages continuously reads device output from the connection
func (c *wsConn) readMessages() {
	defer close(c.messagesCh)

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.closed = true
			c.mu.Unlock()
			return
		}

		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			select {
			case c.messagesCh <- message:
			default:
				// Channel full, drop oldest message
				select {
				case <-c.messagesCh:
				default:
				}
				c.messagesCh <- message
			}
		}
	}
}
