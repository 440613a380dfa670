package sockethub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifyhub/internal/channels"
	"notifyhub/internal/model"
)

func newTestServer(h *Hub, userID string) (*httptest.Server, string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, userID)
	})
	srv := httptest.NewServer(mux)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return srv, wsURL
}

func TestHub_PushDeliversToConnectedSession(t *testing.T) {
	h := New(nil, "instance-1")

	srv, wsURL := newTestServer(h, "user-1")
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool { return h.IsConnected("user-1") }, time.Second, 10*time.Millisecond)

	delivered, err := h.Push(context.Background(), "user-1", channels.InAppPayload{
		NotificationID: "n1", Subject: "hi", Content: "body", Priority: model.PriorityMedium,
	})
	require.NoError(t, err)
	assert.True(t, delivered)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "n1")
}

func TestHub_PushToDisconnectedUserReturnsNotDelivered(t *testing.T) {
	h := New(nil, "instance-1")

	delivered, err := h.Push(context.Background(), "ghost", channels.InAppPayload{NotificationID: "n2"})
	require.NoError(t, err)
	assert.False(t, delivered)
}

func TestHub_UnregisterOnDisconnect(t *testing.T) {
	h := New(nil, "instance-1")

	srv, wsURL := newTestServer(h, "user-2")
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return h.IsConnected("user-2") }, time.Second, 10*time.Millisecond)

	conn.Close()

	assert.Eventually(t, func() bool { return !h.IsConnected("user-2") }, time.Second, 10*time.Millisecond)
}
