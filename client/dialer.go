package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/coder/websocket"

	"github.com/danfors/topicd/status"
)

// Conn is one live status connection. ReadEvent blocks until the next event
// arrives or the connection fails.
type Conn interface {
	ReadEvent(ctx context.Context) (status.Event, error)
	WriteEvent(ctx context.Context, event status.Event) error
	Close() error
}

// Dialer opens status connections. The client never touches the transport
// directly, so tests can substitute an in-memory implementation.
type Dialer interface {
	Dial(ctx context.Context, conversationID string) (Conn, error)
}

// WebsocketDialer dials the daemon's websocket status endpoint.
type WebsocketDialer struct {
	baseURL string
}

// NewWebsocketDialer creates a dialer against a base URL such as
// "ws://localhost:8099".
func NewWebsocketDialer(baseURL string) *WebsocketDialer {
	return &WebsocketDialer{baseURL: strings.TrimRight(baseURL, "/")}
}

// Dial implements Dialer.
func (d *WebsocketDialer) Dial(ctx context.Context, conversationID string) (Conn, error) {
	url := fmt.Sprintf("%s/conversations/%s/status", d.baseURL, conversationID)
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial status endpoint: %w", err)
	}
	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) ReadEvent(ctx context.Context) (status.Event, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return status.Event{}, err
	}
	return status.Decode(data)
}

func (c *wsConn) WriteEvent(ctx context.Context, event status.Event) error {
	data, err := event.Encode()
	if err != nil {
		return err
	}
	return c.ws.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "client disconnect")
}
