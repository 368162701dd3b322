// Package polygon implements the market-data provider transport: a thin
// WebSocket connection plus a REST fallback client. Connection lifecycle
// policy (reconnect, backoff, state) belongs to the marketdata stream, not
// to this package.
package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// readWait is the time allowed between inbound messages before the
	// connection is considered dead. Extended on every message and pong.
	readWait = 60 * time.Second

	handshakeTimeout = 15 * time.Second
)

// Conn is a single established WebSocket connection to the provider. It is
// cheap to abandon: the stream client creates a fresh Conn per connection
// attempt instead of reusing one across reconnects.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
	closed  bool
	closeMu sync.Mutex
}

// Dial opens a WebSocket connection to the given URL. The returned Conn
// answers peer pings with pongs immediately and extends its read deadline on
// every inbound message.
func Dial(ctx context.Context, wsURL string) (*Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	ws, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("polygon: dial %s: %w", wsURL, err)
	}

	c := &Conn{ws: ws}

	ws.SetReadDeadline(time.Now().Add(readWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})
	ws.SetPingHandler(func(appData string) error {
		ws.SetReadDeadline(time.Now().Add(readWait))
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	return c, nil
}

// SendAuth sends the authentication handshake request. The result arrives as
// a status event on the normal read path.
func (c *Conn) SendAuth(apiKey string) error {
	return c.sendCommand(wsCommand{Action: "auth", Params: apiKey})
}

// SendSubscribe subscribes to quote and aggregate channels for the given
// pairs in a single request.
func (c *Conn) SendSubscribe(pairs []string) error {
	params := make([]string, 0, len(pairs)*2)
	for _, p := range pairs {
		params = append(params, "C."+p, "CA."+p)
	}
	return c.sendCommand(wsCommand{Action: "subscribe", Params: strings.Join(params, ",")})
}

// Ping sends a liveness heartbeat to the peer.
func (c *Conn) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// ReadMessage blocks for the next inbound frame and returns its raw bytes.
// Any error means the connection is unusable and must be abandoned.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("polygon: read: %w", err)
	}
	c.ws.SetReadDeadline(time.Now().Add(readWait))
	return data, nil
}

// Close sends a close frame and tears down the connection. Safe to call
// multiple times.
func (c *Conn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	c.writeMu.Lock()
	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	c.writeMu.Unlock()

	return c.ws.Close()
}

func (c *Conn) sendCommand(cmd wsCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("polygon: marshal command: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("polygon: send %s: %w", cmd.Action, err)
	}
	return nil
}
