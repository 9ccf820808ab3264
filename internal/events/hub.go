package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

const (
	clientBuffer = 64
	writeTimeout = 5 * time.Second
)

type client struct {
	id        int64
	sessionID string
	send      chan Event
}

// Hub fans events out to every connected WebSocket client.
type Hub struct {
	logger        *slog.Logger
	allowedOrigin string
	isDev         bool

	mu      sync.RWMutex
	clients map[int64]*client
	nextID  atomic.Int64
	closed  bool
}

// NewHub creates a Hub.
func NewHub(allowedOrigin string, isDev bool, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:        logger,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		clients:       make(map[int64]*client),
	}
}

// Publish delivers e to every interested client. Slow clients drop events.
func (h *Hub) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		if c.sessionID != "" && e.SessionID != "" && c.sessionID != e.SessionID {
			continue
		}
		select {
		case c.send <- e:
		default:
			h.logger.Warn("event client too slow, dropping event", "client_id", c.id, "type", e.Type)
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(sessionID string) *client {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	c := &client{id: h.nextID.Add(1), sessionID: sessionID, send: make(chan Event, clientBuffer)}
	h.clients[c.id] = c
	h.logger.Info("event client registered", "client_id", c.id, "session_id", sessionID)
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
		h.logger.Info("event client unregistered", "client_id", c.id)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}

type clientMessage struct {
	Type string `json:"type"`
}

// ServeHTTP upgrades the request and streams events until either side closes.
// An optional ?session= query restricts session-scoped events to one session.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	c := h.register(r.URL.Query().Get("session"))
	if c == nil {
		return
	}
	defer h.unregister(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	pongs := make(chan struct{}, 1)
	go func() {
		defer cancel()
		h.readLoop(ctx, ws, pongs)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-c.send:
			if !ok {
				return
			}
			if err := h.writeJSON(ctx, ws, e); err != nil {
				h.logger.Debug("event write failed", "error", err, "client_id", c.id)
				return
			}
		case <-pongs:
			if err := h.writeJSON(ctx, ws, map[string]string{"type": "pong"}); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, ws *websocket.Conn, pongs chan<- struct{}) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Debug("WebSocket read error", "error", err)
			}
			return
		}
		var msg clientMessage
		if json.Unmarshal(data, &msg) == nil && msg.Type == "ping" {
			select {
			case pongs <- struct{}{}:
			default:
			}
		}
	}
}

func (h *Hub) writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
