package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is the drawing-client side of the protocol: it introduces itself
// with a Hello and then sends event text.
type Client struct {
	conn    *websocket.Conn
	plotID  string
	writeMu sync.Mutex
	done    chan struct{}
	err     error
}

// Dial connects to a plot's client endpoint (see ClientURL) and completes the handshake.
func Dial(ctx context.Context, url string, hello Hello) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
		conn.SetReadDeadline(deadline)
	}
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ws hello: %w", err)
	}
	var ack Ack
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ws ack: %w", err)
	}
	if ack.Error != "" {
		conn.Close()
		return nil, fmt.Errorf("bind rejected: %s", ack.Error)
	}
	conn.SetWriteDeadline(time.Time{})
	conn.SetReadDeadline(time.Time{})

	c := &Client{
		conn:   conn,
		plotID: ack.PlotID,
		done:   make(chan struct{}),
	}
	// Reading keeps the default ping handler answering liveness probes.
	go c.readLoop()
	return c, nil
}

// PlotID returns the plot the client is bound to.
func (c *Client) PlotID() string {
	return c.plotID
}

// Send writes one event text message.
func (c *Client) Send(text string) error {
	select {
	case <-c.done:
		return fmt.Errorf("connection closed: %w", c.err)
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Done is closed once the server side of the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close performs a normal websocket close.
func (c *Client) Close() error {
	c.writeMu.Lock()
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
	c.writeMu.Unlock()

	select {
	case <-c.done:
	case <-time.After(time.Second):
	}
	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.err = err
			return
		}
	}
}
