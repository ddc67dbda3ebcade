// Package ws carries the drawing-client protocol over websocket.
//
// A client connects to /plots/{id}/client/ws and sends a Hello with its pid and
// name. The server binds the connection as the plot's client and answers with
// an Ack. Every following text message is event text for the plot. Liveness is
// a ping/pong round trip on the same connection.
package ws

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

const (
	writeTimeout        = 10 * time.Second
	defaultHelloTimeout = 10 * time.Second
	defaultProbeTimeout = 5 * time.Second
	pongBuffer          = 4
)

// Hello is the first message a client sends.
type Hello struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
}

// Ack answers a Hello. A non-empty Error means the client was not bound.
type Ack struct {
	PlotID string `json:"plot_id"`
	Error  string `json:"error,omitempty"`
}

// ClientURL turns a server base URL (http, https, ws or wss) into the client
// endpoint of plotID.
func ClientURL(base, plotID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", base)
	}
	if plotID == "" || strings.Contains(plotID, "/") {
		return "", fmt.Errorf("invalid plot id %q", plotID)
	}
	u.Path = path.Join("/", u.Path, "plots", plotID, "client", "ws")
	u.RawPath = ""
	return u.String(), nil
}
