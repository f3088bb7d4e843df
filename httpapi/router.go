package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/monitor"
	"github.com/MrEthical07/authshield/ratelimit"
)

// Handler serves the authentication API.
type Handler struct {
	engine  *authshield.Engine
	monitor *monitor.Monitor
	logger  *zap.Logger
}

// Option customizes a [Handler].
type Option func(*Handler)

// WithMonitor mounts the alert and threshold endpoints.
func WithMonitor(m *monitor.Monitor) Option {
	return func(h *Handler) {
		h.monitor = m
	}
}

// WithLogger sets the request and error logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewRouter returns the chi router for engine.
func NewRouter(engine *authshield.Engine, opts ...Option) http.Handler {
	h := &Handler{engine: engine, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLog)
	r.Use(clientContext)

	r.Get("/health", h.health)

	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(engine.RateChecker(ratelimit.ProfileAPI)))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.register)
			r.Post("/login", h.login)
			r.Post("/verify-email", h.verifyEmail)
			r.Post("/verify-email/resend", h.resendVerification)
			r.Post("/password/reset-request", h.requestPasswordReset)
			r.Post("/password/reset", h.resetPassword)
			r.Post("/logout", h.logout)

			r.Group(func(r chi.Router) {
				r.Use(h.authenticate)
				r.Get("/session", h.session)
				r.Get("/sessions", h.sessions)
				r.Post("/logout-all", h.logoutAll)
				r.Post("/password/change", h.changePassword)
				r.Get("/lockout-status", h.ownLockoutStatus)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.authenticate)
			r.Use(requireAdminRole)

			r.Get("/users/{userID}/lockout", h.lockoutStatus)
			r.Post("/users/{userID}/unlock", h.unlock)
			r.Get("/locked-accounts", h.lockedAccounts)
			r.Get("/security-report", h.securityReport)
			r.Post("/maintenance", h.maintenance)

			if h.monitor != nil {
				r.Get("/alerts", h.alerts)
				r.Post("/alerts/{alertID}/acknowledge", h.acknowledge)
				r.Get("/thresholds", h.thresholds)
				r.Put("/thresholds", h.setThresholds)
				r.Get("/monitor/patterns", h.detect)
				r.Post("/monitor/run", h.runMonitor)
				r.Post("/monitor/start", h.startMonitor)
				r.Post("/monitor/stop", h.stopMonitor)
			}
		})
	})

	return r
}

// clientContext carries the caller address and user agent into the
// engine.
func clientContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := authshield.WithClientIP(r.Context(), ratelimit.ClientIP(r))
		ctx = authshield.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type sessionContextKey struct{}

type authedSession struct {
	handle string
	info   *authshield.SessionInfo
}

func bearer(r *http.Request) string {
	v := r.Header.Get("Authorization")
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return ""
}

// authenticate rejects requests without a live session.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handle := bearer(r)
		info, err := h.engine.ValidateSession(r.Context(), handle)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey{}, &authedSession{handle: handle, info: info})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *authedSession {
	s, _ := r.Context().Value(sessionContextKey{}).(*authedSession)
	return s
}

// requireAdminRole gates the admin routes on the session role. Engine
// admin operations check the stored role again.
func requireAdminRole(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r)
		if s == nil || s.info.Role != authshield.RoleAdmin {
			fail(w, r, http.StatusForbidden, errorBody{
				Code:    string(authshield.CodePermissionDenied),
				Message: "Admin privileges required",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	status := h.engine.Health(r.Context())
	code := http.StatusOK
	if !status.RedisAvailable {
		code = http.StatusServiceUnavailable
	}
	render.Status(r, code)
	render.JSON(w, r, envelope{Success: status.RedisAvailable, Data: status})
}
