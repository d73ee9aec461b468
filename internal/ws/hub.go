package ws

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"chatcore/internal/obs"
)

// sendBuffer bounds the per-session outbound queue. A session that falls this
// far behind is dropped; it catches up by fetching on reconnect.
const sendBuffer = 64

// Session is one connected device of a user. Outbound frames are queued on
// Send and written by the session's writer goroutine.
type Session struct {
	ID     string
	UserID int64

	send      chan []byte
	closeOnce sync.Once
}

// Send returns the outbound queue. It is closed when the hub drops the session.
func (s *Session) Send() <-chan []byte { return s.send }

// Hub manages active sessions keyed by user ID.
type Hub struct {
	mu       sync.RWMutex
	sessions map[int64]map[string]*Session

	logger  *slog.Logger
	metrics *obs.Metrics
}

func NewHub(logger *slog.Logger, metrics *obs.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions: make(map[int64]map[string]*Session),
		logger:   logger,
		metrics:  metrics,
	}
}

// Register adds a new session for the given user.
func (h *Hub) Register(userID int64) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		send:   make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[userID] == nil {
		h.sessions[userID] = make(map[string]*Session)
	}
	h.sessions[userID][s.ID] = s
	h.metrics.SessionOpened()
	return s
}

// Unregister removes the session and closes its queue. Safe to call twice.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessions, ok := h.sessions[s.UserID]; ok {
		if _, ok := sessions[s.ID]; ok {
			delete(sessions, s.ID)
			h.metrics.SessionClosed()
		}
		if len(sessions) == 0 {
			delete(h.sessions, s.UserID)
		}
	}
	s.closeOnce.Do(func() { close(s.send) })
}

// Deliver queues payload on every session of userIDs except skipSession.
// It never blocks: sessions with a full queue are dropped.
func (h *Hub) Deliver(userIDs []int64, payload []byte, skipSession string) (sent int) {
	var slow []*Session

	h.mu.RLock()
	for _, uid := range userIDs {
		for id, s := range h.sessions[uid] {
			if id == skipSession {
				continue
			}
			select {
			case s.send <- payload:
				sent++
				h.metrics.BroadcastDelivery("sent")
			default:
				slow = append(slow, s)
				h.metrics.BroadcastDelivery("dropped")
			}
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.logger.Warn("dropping slow websocket session", "user_id", s.UserID, "session_id", s.ID)
		h.Unregister(s)
	}
	return sent
}

// Enqueue queues a frame for a single session, dropping it when the queue is full.
func (h *Hub) Enqueue(s *Session, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.sessions[s.UserID][s.ID]; !ok {
		return false
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// SessionCount returns the number of connected sessions of a user.
func (h *Hub) SessionCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}
