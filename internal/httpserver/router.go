package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"chatcore/internal/domain"
	"chatcore/internal/notify"
	"chatcore/internal/service"
	"chatcore/internal/ws"
)

// Deps carries everything the router exposes.
type Deps struct {
	Messaging *service.MessagingService
	Auth      *service.AuthService
	Users     *service.UserService
	Inbox     *notify.Inbox
	// WS serves /ws; Metrics serves /metrics. Either may be nil.
	WS      http.Handler
	Metrics http.Handler

	CORSOrigins []string
	// DevRoutes enables token issuing and user creation for local development.
	DevRoutes bool
	Logger    *slog.Logger
}

// NewRouter constructs the main HTTP router and wires routes and middleware.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", sessionHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}
	if d.WS != nil {
		r.Method(http.MethodGet, "/ws", d.WS)
	}

	h := &handlers{msg: d.Messaging, auth: d.Auth, users: d.Users, inbox: d.Inbox, logger: logger}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		if d.DevRoutes {
			r.Post("/auth/token", h.issueToken)
			r.Post("/users", h.createUser)
		}

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(d.Auth, logger))
			r.Use(originSession)

			r.Get("/auth/me", h.me)
			r.Get("/users/{userID}", h.getUser)

			r.Route("/conversations", func(r chi.Router) {
				r.Post("/", h.createConversation)
				r.Get("/", h.listConversations)
				r.Get("/search", h.searchConversations)
				r.Get("/{conversationID}", h.getConversation)
				r.Patch("/{conversationID}", h.updateConversation)
				r.Delete("/{conversationID}", h.deleteConversation)
				r.Post("/{conversationID}/leave", h.leaveConversation)
				r.Put("/{conversationID}/mute", h.muteConversation)
				r.Post("/{conversationID}/participants", h.addParticipants)
				r.Delete("/{conversationID}/participants/{userID}", h.removeParticipant)
				r.Post("/{conversationID}/read", h.markConversationRead)
				r.Get("/{conversationID}/unread-count", h.conversationUnreadCount)
				r.Get("/{conversationID}/messages", h.listMessages)
				r.Post("/{conversationID}/messages", h.sendMessage)
			})

			r.Route("/messages", func(r chi.Router) {
				r.Get("/search", h.searchMessages)
				r.Get("/unread-count", h.unreadCount)
				r.Get("/{messageID}", h.getMessage)
				r.Patch("/{messageID}", h.updateMessage)
				r.Delete("/{messageID}", h.deleteMessage)
				r.Post("/{messageID}/read", h.markMessageRead)
				r.Post("/{messageID}/delivered", h.markMessageDelivered)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.listNotifications)
				r.Get("/preference", h.getPreference)
				r.Put("/preference", h.updatePreference)
			})

			r.Route("/settings", func(r chi.Router) {
				r.Get("/", h.getSettings)
				r.Group(func(r chi.Router) {
					r.Use(RequirePermission(domain.PermissionSettingsUpdate))
					r.Patch("/", h.updateSettings)
					r.Post("/toggle", h.toggleMessaging)
				})
			})
		})
	})

	return r
}

type handlers struct {
	msg    *service.MessagingService
	auth   *service.AuthService
	users  *service.UserService
	inbox  *notify.Inbox
	logger *slog.Logger
}

// sessionHeader lets HTTP callers name their websocket session so the
// resulting broadcast skips it.
const sessionHeader = "X-WS-Session"

func originSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(sessionHeader); id != "" {
			r = r.WithContext(ws.WithOriginSession(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps the domain error taxonomy onto HTTP status codes. Internal
// failures are logged and reported without detail.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, service.ErrUnauthenticated):
		status = http.StatusUnauthorized
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, status, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.Validation("invalid JSON body")
	}
	return nil
}

func pathID(r *http.Request, param string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validation("invalid %s", param)
	}
	return id, nil
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func queryInt64(r *http.Request, key string) int64 {
	n, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return n
}
