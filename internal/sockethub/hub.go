// Package sockethub implements component H: the WebSocket fan-out for
// IN_APP notifications. Each connected session gets its own Send channel so
// writes to a given socket are always serialized through one goroutine;
// presence and push fan-out are shared across a fleet of notifyhub
// instances through Redis pub/sub, since a user's active session may be
// held by a different instance than the one handling their Dispatch call.
package sockethub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"

	"notifyhub/internal/channels"
	"notifyhub/internal/logging"
)

const (
	presenceChannel = "notifyhub:sockethub:presence"
	pushChannel     = "notifyhub:sockethub:push"
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
)

// session is one connected socket, local to this instance.
type session struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte

	mu       sync.Mutex
	lastPong time.Time
}

func (s *session) touch() {
	s.mu.Lock()
	s.lastPong = time.Now()
	s.mu.Unlock()
}

func (s *session) staleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPong.Before(cutoff)
}

// Hub is the component H contract and implements channels.InAppPusher.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string][]*session // userID -> local sessions

	redis    *redis.Client
	instance string
}

// New builds a Hub. redisClient may be nil to run single-instance (presence
// and push fan-out then never leave this process).
func New(redisClient *redis.Client, instanceID string) *Hub {
	h := &Hub{sessions: make(map[string][]*session), redis: redisClient, instance: instanceID}
	if redisClient != nil {
		go h.subscribePush(context.Background())
	}
	return h
}

// Register adds a newly upgraded connection for userID and starts its
// read/write pumps. Callers own the HTTP upgrade; Register takes ownership
// of conn's lifecycle from here.
func (h *Hub) Register(ctx context.Context, userID string, conn *websocket.Conn) {
	s := &session{userID: userID, conn: conn, send: make(chan []byte, 64), lastPong: time.Now()}

	h.mu.Lock()
	h.sessions[userID] = append(h.sessions[userID], s)
	h.mu.Unlock()

	h.publishPresence(ctx, userID, true)

	go h.writePump(s)
	go h.readPump(s)
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	list := h.sessions[s.userID]
	for i, cand := range list {
		if cand == s {
			h.sessions[s.userID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	remaining := len(h.sessions[s.userID])
	if remaining == 0 {
		delete(h.sessions, s.userID)
	}
	h.mu.Unlock()

	if remaining == 0 {
		h.publishPresence(context.Background(), s.userID, false)
	}
	close(s.send)
}

func (h *Hub) writePump(s *session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(s *session) {
	defer h.unregister(s)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.touch()
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// IsConnected reports whether userID has a live session on this instance.
func (h *Hub) IsConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID]) > 0
}

type wireMessage struct {
	NotificationID string `json:"notificationId"`
	Subject        string `json:"subject"`
	Content        string `json:"content"`
	Priority       string `json:"priority"`
}

// Push implements channels.InAppPusher: deliver payload to every local
// session for userID, or fan out to the rest of the fleet via Redis if none
// is connected here.
func (h *Hub) Push(ctx context.Context, userID string, payload channels.InAppPayload) (bool, error) {
	msg := wireMessage{
		NotificationID: payload.NotificationID,
		Subject:        payload.Subject,
		Content:        payload.Content,
		Priority:       string(payload.Priority),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return false, err
	}

	if h.deliverLocal(userID, body) {
		return true, nil
	}

	if h.redis == nil {
		return false, nil
	}

	envelope, _ := json.Marshal(struct {
		UserID  string          `json:"userId"`
		Payload json.RawMessage `json:"payload"`
	}{UserID: userID, Payload: body})

	if err := h.redis.Publish(ctx, pushChannel, envelope).Err(); err != nil {
		logging.Warn("sockethub: publishing push fan-out failed: %v", err)
		return false, nil
	}
	return false, nil
}

func (h *Hub) deliverLocal(userID string, body []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sessions := h.sessions[userID]
	delivered := false
	for _, s := range sessions {
		select {
		case s.send <- body:
			delivered = true
		default:
			logging.Warn("sockethub: send buffer full for user %s, dropping message", userID)
		}
	}
	return delivered
}

func (h *Hub) publishPresence(ctx context.Context, userID string, online bool) {
	if h.redis == nil {
		return
	}
	envelope, _ := json.Marshal(struct {
		UserID   string `json:"userId"`
		Online   bool   `json:"online"`
		Instance string `json:"instance"`
	}{UserID: userID, Online: online, Instance: h.instance})
	if err := h.redis.Publish(ctx, presenceChannel, envelope).Err(); err != nil {
		logging.Warn("sockethub: publishing presence failed: %v", err)
	}
}

// subscribePush listens for push fan-out messages meant for a user
// connected to a different instance than the one that originated the push.
func (h *Hub) subscribePush(ctx context.Context) {
	sub := h.redis.Subscribe(ctx, pushChannel)
	defer sub.Close()

	ch := sub.Channel()
	for msg := range ch {
		var envelope struct {
			UserID  string          `json:"userId"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
			continue
		}
		h.deliverLocal(envelope.UserID, envelope.Payload)
	}
}

// HeartbeatSweep closes any session that has not answered a ping within
// pongWait, run periodically by the scheduler. readPump's own unregister
// defer reacts to the resulting read error and cleans up the session map.
func (h *Hub) HeartbeatSweep() {
	cutoff := time.Now().Add(-pongWait)

	h.mu.RLock()
	var stale []*session
	for _, sessions := range h.sessions {
		for _, s := range sessions {
			if s.staleSince(cutoff) {
				stale = append(stale, s)
			}
		}
	}
	h.mu.RUnlock()

	for _, s := range stale {
		s.conn.Close()
	}
}
