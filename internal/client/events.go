package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/websocket"
)

// Event names exchanged over /ws.
const (
	EventModelUpdate   = "model_update"
	EventRefreshModels = "refresh_models"
)

// Event is one message on the event socket.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ModelUpdate is the payload of a model_update event.
type ModelUpdate struct {
	Refresh bool `json:"refresh"`
}

// Events is a live subscription to server-pushed events.
type Events struct {
	conn *websocket.Conn
	stop func() bool
}

// Events opens the /ws event socket. The subscription is closed when ctx is
// done or Close is called.
func (c *Client) Events(ctx context.Context) (*Events, error) {
	wsURL := c.baseURL + "/ws"
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	cfg, err := websocket.NewConfig(wsURL, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("event socket config: %w", err)
	}
	c.authorize(cfg.Header)
	conn, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", wsURL, err)
	}

	e := &Events{conn: conn}
	e.stop = context.AfterFunc(ctx, func() { conn.Close() })
	return e, nil
}

// Receive blocks until the next event arrives or the socket closes.
func (e *Events) Receive() (Event, error) {
	var ev Event
	if err := websocket.JSON.Receive(e.conn, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// RequestRefresh asks the server to broadcast a model_update to all clients.
func (e *Events) RequestRefresh() error {
	return websocket.JSON.Send(e.conn, Event{Event: EventRefreshModels})
}

// Close ends the subscription.
func (e *Events) Close() error {
	e.stop()
	return e.conn.Close()
}
