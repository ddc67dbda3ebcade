package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/plotlink/internal/logging"
	"github.com/aretw0/plotlink/pkg/ports"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Binder is the slice of the plot registry the websocket transport needs.
// session.Manager implements it.
type Binder interface {
	Bind(ctx context.Context, plotID string, identity ports.Responder, pid int, name string) error
	Post(plotID, text string) error
}

// Handler upgrades client connections and binds them to plots.
type Handler struct {
	binder       Binder
	upgrader     websocket.Upgrader
	helloTimeout time.Duration
	logger       *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithCheckOrigin overrides the upgrader's origin check.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = fn
	}
}

// WithHelloTimeout bounds how long a new connection may take to send its Hello.
func WithHelloTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.helloTimeout = d
		}
	}
}

// NewHandler creates a websocket Handler binding clients through binder.
func NewHandler(binder Binder, opts ...Option) *Handler {
	h := &Handler{
		binder:       binder,
		helloTimeout: defaultHelloTimeout,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeClient upgrades the request and serves one drawing client of plotID
// until the connection drops. Disconnecting does not invalidate the binding;
// the plot sees the client as not responding until it is invalidated or replaced.
func (h *Handler) ServeClient(w http.ResponseWriter, r *http.Request, plotID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "plot_id", plotID, "err", err)
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(h.helloTimeout))
	var hello Hello
	if err := conn.ReadJSON(&hello); err != nil {
		h.logger.Warn("ws hello failed", "plot_id", plotID, "err", err)
		return
	}
	conn.SetReadDeadline(time.Time{})

	client := newClientConn(conn)
	if err := h.binder.Bind(r.Context(), plotID, client, hello.PID, hello.Name); err != nil {
		h.logger.Warn("ws bind failed", "plot_id", plotID, "pid", hello.PID, "err", err)
		_ = client.writeJSON(Ack{PlotID: plotID, Error: err.Error()})
		return
	}
	if err := client.writeJSON(Ack{PlotID: plotID}); err != nil {
		return
	}
	h.logger.Info("ws client bound", "plot_id", plotID, "pid", hello.PID, "name", hello.Name)

	defer client.markClosed()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("ws client read ended", "plot_id", plotID, "err", err)
			}
			h.logger.Info("ws client disconnected", "plot_id", plotID, "pid", hello.PID)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if err := h.binder.Post(plotID, string(data)); err != nil {
			h.logger.Info("ws plot gone, closing client", "plot_id", plotID, "err", err)
			_ = client.writeControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "plot closed"))
			return
		}
	}
}

// clientConn is the Responder of a websocket-bound client.
type clientConn struct {
	conn *websocket.Conn

	writeMu sync.Mutex // serialises all conn writes
	probeMu sync.Mutex // one ping in flight at a time
	pongs   chan string // pong payloads

	closeOnce sync.Once
	closed    chan struct{}
}

func newClientConn(conn *websocket.Conn) *clientConn {
	c := &clientConn{
		conn:   conn,
		pongs:  make(chan string, pongBuffer),
		closed: make(chan struct{}),
	}
	conn.SetPongHandler(func(appData string) error {
		select {
		case c.pongs <- appData:
		default:
		}
		return nil
	})
	return c
}

func (c *clientConn) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *clientConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *clientConn) writeControl(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(messageType, data, time.Now().Add(writeTimeout))
}

// IsResponding sends a ping with a fresh payload and waits for the pong that
// echoes it. Pongs answering earlier pings are skipped.
func (c *clientConn) IsResponding(ctx context.Context) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	c.probeMu.Lock()
	defer c.probeMu.Unlock()

	token := uuid.NewString()
	if err := c.writeControl(websocket.PingMessage, []byte(token)); err != nil {
		return false
	}

	timer := time.NewTimer(defaultProbeTimeout)
	defer timer.Stop()
	for {
		select {
		case data := <-c.pongs:
			if data == token {
				return true
			}
		case <-c.closed:
			return false
		case <-ctx.Done():
			return false
		case <-timer.C:
			return false
		}
	}
}
