package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestHubDeliversEvents(t *testing.T) {
	hub := NewHub("", true, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	all := dial(t, srv, "")
	scoped := dial(t, srv, "?session=convo-2")
	require.Eventually(t, func() bool { return hub.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(Event{Type: MessageAdded, SessionID: "convo-1", Data: map[string]string{"id": "ai-1"}})
	hub.Publish(Event{Type: ProfileUpdated})

	got := readEvent(t, all)
	assert.Equal(t, string(MessageAdded), got["type"])
	assert.Equal(t, "convo-1", got["sessionId"])
	got = readEvent(t, all)
	assert.Equal(t, string(ProfileUpdated), got["type"])

	// The scoped client never sees convo-1 traffic.
	got = readEvent(t, scoped)
	assert.Equal(t, string(ProfileUpdated), got["type"])
}

func TestHubAnswersPing(t *testing.T) {
	hub := NewHub("", true, nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv, "")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)))

	got := readEvent(t, conn)
	assert.Equal(t, "pong", got["type"])
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := NewHub("https://friend.example", false, nil)
	req := httptest.NewRequest(http.MethodGet, "/ws/events", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()

	hub.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPublishWithoutClients(t *testing.T) {
	hub := NewHub("", true, nil)
	hub.Publish(Event{Type: TurnState})
	hub.Close()
	hub.Publish(Event{Type: TurnState})
	assert.Zero(t, hub.Len())
}
