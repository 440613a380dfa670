package sockethub

import (
	"net/http"

	"github.com/gorilla/websocket"

	"notifyhub/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades an authenticated HTTP request to a WebSocket connection
// and registers it under userID. Callers (the HTTP composition root) are
// responsible for authenticating the request and extracting userID before
// calling this.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("sockethub: upgrade failed for user %s: %v", userID, err)
		return
	}
	h.Register(r.Context(), userID, conn)
}
