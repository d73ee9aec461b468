package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"chatcore/internal/domain"
	"chatcore/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

// Authenticator resolves a bearer token to the calling user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*service.Principal, error)
}

// ReadTracker is the subset of the messaging service driven by client acks.
type ReadTracker interface {
	MarkConversationAsRead(ctx context.Context, conversationID, userID int64) (int64, error)
	MarkMessageAsRead(ctx context.Context, messageID, userID int64) error
	MarkMessageAsDelivered(ctx context.Context, messageID, userID int64) error
}

type HandlerConfig struct {
	AllowedOrigins []string
	// MaxMessagesPerSecond throttles inbound frames per session; 0 disables it.
	MaxMessagesPerSecond int
}

type inboundEvent struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversation_id,omitempty"`
	MessageID      int64  `json:"message_id,omitempty"`
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}
	if _, ok := allowed["*"]; ok {
		return func(r *http.Request) bool {
			return true
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

// NewHandler returns an HTTP handler for the /ws endpoint.
// Authenticates via Bearer token (Authorization header or Sec-WebSocket-Protocol),
// registers a session on the hub and handles client events:
//   - mark_read  -> mark a conversation (conversation_id) or one message (message_id) read
//   - delivered  -> acknowledge delivery of message_id
//   - ping       -> answered with pong
//
// Server events are written from the session queue filled by the Broadcaster.
func NewHandler(hub *Hub, auth Authenticator, reads ReadTracker, cfg HandlerConfig, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	checkOrigin := makeCheckOrigin(cfg.AllowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin:  checkOrigin,
		Subprotocols: []string{"bearer"},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractTokenFromWSRequest(r)
		if err != nil {
			var authErr wsAuthError
			if errors.As(err, &authErr) {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		principal, err := auth.Authenticate(r.Context(), tokenStr)
		if err != nil {
			if !errors.Is(err, service.ErrUnauthenticated) {
				logger.Error("ws authenticate failed", "err", err)
			}
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		c := &client{
			hub:    hub,
			conn:   conn,
			reads:  reads,
			logger: logger.With("user_id", principal.User.ID),
		}
		if cfg.MaxMessagesPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(cfg.MaxMessagesPerSecond), cfg.MaxMessagesPerSecond)
		}
		c.session = hub.Register(principal.User.ID)
		c.logger = c.logger.With("session_id", c.session.ID)
		c.logger.Debug("websocket session opened")

		c.push(map[string]any{"type": "session", "session_id": c.session.ID})

		go c.writePump()
		c.readPump()
	}
}

type client struct {
	hub     *Hub
	session *Session
	conn    *websocket.Conn
	reads   ReadTracker
	limiter *rate.Limiter
	logger  *slog.Logger
}

// readPump owns the read side of the connection. It returns when the peer
// goes away, after which the session is dropped and the writer exits.
func (c *client) readPump() {
	defer func() {
		c.hub.Unregister(c.session)
		c.logger.Debug("websocket session closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "err", err)
			}
			return
		}
		if c.limiter != nil && !c.limiter.Allow() {
			c.sendError("rate limit exceeded")
			continue
		}

		var ev inboundEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.sendError("malformed event")
			continue
		}
		c.handle(ev)
	}
}

func (c *client) handle(ev inboundEvent) {
	ctx := WithOriginSession(context.Background(), c.session.ID)
	userID := c.session.UserID

	switch ev.Type {
	case "mark_read":
		var err error
		switch {
		case ev.MessageID != 0:
			err = c.reads.MarkMessageAsRead(ctx, ev.MessageID, userID)
		case ev.ConversationID != 0:
			_, err = c.reads.MarkConversationAsRead(ctx, ev.ConversationID, userID)
		default:
			c.sendError("mark_read requires conversation_id or message_id")
			return
		}
		c.reportResult("mark_read", ev, err)

	case "delivered":
		if ev.MessageID == 0 {
			c.sendError("delivered requires message_id")
			return
		}
		c.reportResult("delivered", ev, c.reads.MarkMessageAsDelivered(ctx, ev.MessageID, userID))

	case "ping":
		c.push(map[string]any{"type": "pong"})

	default:
		c.sendError(fmt.Sprintf("unknown event type %q", ev.Type))
	}
}

func (c *client) reportResult(op string, ev inboundEvent, err error) {
	if err == nil {
		c.push(map[string]any{
			"type":            "ack",
			"event":           op,
			"conversation_id": ev.ConversationID,
			"message_id":      ev.MessageID,
		})
		return
	}
	var derr *domain.Error
	if errors.As(err, &derr) {
		c.sendError(derr.Message)
		return
	}
	c.logger.Error("ws event failed", "event", op, "err", err)
	c.sendError("internal error")
}

// writePump drains the session queue onto the connection and keeps it alive
// with pings. It closes the connection once the queue is closed.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.session.Send():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.hub.Unregister(c.session)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Unregister(c.session)
				return
			}
		}
	}
}

func (c *client) push(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("ws encode failed", "err", err)
		return
	}
	c.hub.Enqueue(c.session, b)
}

func (c *client) sendError(msg string) {
	c.push(map[string]any{
		"type":    "error",
		"message": msg,
	})
}
