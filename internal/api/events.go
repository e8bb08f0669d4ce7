package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"

	"github.com/bitdruid/llmm/internal/client"
)

// Hub fans model_update events out to every connected event socket.
type Hub struct {
	log zerolog.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{log: log, conns: make(map[*websocket.Conn]struct{})}
}

// ServeHTTP upgrades the request to an event socket. Any origin is accepted:
// events carry no data beyond a refresh hint.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	websocket.Server{
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   h.serve,
	}.ServeHTTP(w, r)
}

func (h *Hub) serve(ws *websocket.Conn) {
	h.add(ws)
	defer h.remove(ws)

	h.log.Info().Str("remote", ws.Request().RemoteAddr).Msg("event client connected")
	for {
		var ev client.Event
		if err := websocket.JSON.Receive(ws, &ev); err != nil {
			if !errors.Is(err, io.EOF) {
				h.log.Debug().Err(err).Msg("event socket read failed")
			}
			h.log.Info().Str("remote", ws.Request().RemoteAddr).Msg("event client disconnected")
			return
		}
		switch ev.Event {
		case client.EventRefreshModels:
			h.log.Info().Msg("client requested model refresh")
			h.ModelsChanged()
		default:
			h.log.Debug().Str("event", ev.Event).Msg("ignoring unknown event")
		}
	}
}

func (h *Hub) add(ws *websocket.Conn) {
	h.mu.Lock()
	h.conns[ws] = struct{}{}
	h.mu.Unlock()
	eventClients.Inc()
}

func (h *Hub) remove(ws *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.conns[ws]
	delete(h.conns, ws)
	h.mu.Unlock()
	if ok {
		eventClients.Dec()
		ws.Close()
	}
}

// Clients returns the number of connected sockets.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast sends ev to every client. Clients that fail to receive are
// dropped.
func (h *Hub) Broadcast(ev client.Event) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := websocket.JSON.Send(c, ev); err != nil {
			h.log.Debug().Err(err).Msg("dropping event client")
			h.remove(c)
		}
	}
}

// ModelsChanged tells clients to reload their model listings.
func (h *Hub) ModelsChanged() {
	data, _ := json.Marshal(client.ModelUpdate{Refresh: true})
	h.Broadcast(client.Event{Event: client.EventModelUpdate, Data: data})
}
