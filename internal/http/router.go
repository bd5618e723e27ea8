package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tirtha134/NoteApp-backend/internal/config"
	"github.com/Tirtha134/NoteApp-backend/internal/service/auth"
	"github.com/Tirtha134/NoteApp-backend/internal/service/note"
)

const healthCheckTimeout = 2 * time.Second

// Router wires HTTP endpoints to services.
type Router struct {
	mux     *http.ServeMux
	handler http.Handler
	logger  *slog.Logger
	auth    auth.Service
	notes   note.Service

	cookieTTL      time.Duration
	cookieSecure   bool
	cookieSameSite http.SameSite
	corsOrigin     string

	dbHealth func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, noteSvc note.Service, cfg config.Config, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:            http.NewServeMux(),
		logger:         logger,
		auth:           authSvc,
		notes:          noteSvc,
		cookieTTL:      cfg.TokenTTL,
		cookieSecure:   cfg.CookieSecure,
		cookieSameSite: cfg.CookieSameSite,
		corsOrigin:     cfg.CORSOrigin,
		dbHealth:       dbHealth,
	}
	r.initMetrics()
	r.register()
	r.handler = r.withCORS(r.mux)
	return r
}

// ServeHTTP delegates to the underlying mux through the CORS wrapper.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

func (r *Router) register() {
	r.mux.HandleFunc("/", r.observe("/", r.handleHealth))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/api/auth/register", r.observe("/api/auth/register", r.handleRegister))
	r.mux.HandleFunc("/api/auth/login", r.observe("/api/auth/login", r.handleLogin))
	r.mux.HandleFunc("/api/auth/logout", r.observe("/api/auth/logout", r.handleLogout))
	r.mux.HandleFunc("/api/auth/verify", r.observe("/api/auth/verify", r.requireAuth(r.handleVerify)))
	r.mux.HandleFunc("/api/auth/reset-password", r.observe("/api/auth/reset-password", r.handleResetPassword))
	r.mux.HandleFunc("/api/note/add", r.observe("/api/note/add", r.requireAuth(r.handleNoteAdd)))
	r.mux.HandleFunc("/api/note/", r.observe("/api/note/", r.requireAuth(r.handleNoteSubroutes)))
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	healthy := true
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			healthy = false
			components["database"] = map[string]any{"status": "down", "error": err.Error()}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"success":    false,
			"message":    "API is degraded",
			"components": components,
		})
		return
	}
	writeSuccess(w, http.StatusOK, "API is running", map[string]any{
		"components": components,
	})
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Name     string `json:"name"`
		Phone    string `json:"phone"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return
	}
	user, err := r.auth.Register(req.Context(), payload.Name, payload.Phone, payload.Email, payload.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingFields):
			writeError(w, http.StatusBadRequest, "All fields are required")
		case errors.Is(err, auth.ErrUserExists):
			writeError(w, http.StatusBadRequest, "User already exists")
		default:
			r.logger.Error("registration failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Server error during registration")
		}
		return
	}
	writeSuccess(w, http.StatusCreated, "Account created successfully", map[string]any{
		"user": user.Public(),
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Identifier and password required")
		return
	}
	user, token, err := r.auth.Login(req.Context(), payload.Identifier, payload.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingFields):
			writeError(w, http.StatusBadRequest, "Identifier and password required")
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
		default:
			r.logger.Error("login failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Server error during login")
		}
		return
	}
	r.setSessionCookie(w, token)
	writeSuccess(w, http.StatusOK, "Login successful", map[string]any{
		"user": user.Public(),
	})
}

// handleLogout clears the cookie only. The token itself stays valid until
// its natural expiry; there is no server-side revocation.
func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	r.clearSessionCookie(w)
	writeSuccess(w, http.StatusOK, "Logged out successfully", nil)
}

func (r *Router) handleVerify(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	authed, ok := userFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for verify", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "Server error during verification")
		return
	}
	user, err := r.auth.GetUser(req.Context(), authed.ID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		r.logger.Error("verification failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error during verification")
		return
	}
	writeSuccess(w, http.StatusOK, "User verified", map[string]any{
		"user": user.Public(),
	})
}

func (r *Router) handleResetPassword(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Identifier  string `json:"identifier"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Identifier and new password required")
		return
	}
	if err := r.auth.ResetPassword(req.Context(), payload.Identifier, payload.NewPassword); err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingFields):
			writeError(w, http.StatusBadRequest, "Identifier and new password required")
		case errors.Is(err, auth.ErrPasswordTooShort):
			writeError(w, http.StatusBadRequest, "Password must be at least 6 characters")
		case errors.Is(err, auth.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		default:
			r.logger.Error("password reset failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Server error during password reset")
		}
		return
	}
	writeSuccess(w, http.StatusOK, "Password reset successful", nil)
}

func (r *Router) handleNoteAdd(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	user, ok := userFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for note add", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "Server error while adding note")
		return
	}
	var payload struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Title and description are required")
		return
	}
	created, err := r.notes.Add(req.Context(), user.ID, payload.Title, payload.Description)
	if err != nil {
		if errors.Is(err, note.ErrMissingFields) {
			writeError(w, http.StatusBadRequest, "Title and description are required")
			return
		}
		r.logger.Error("note add failed", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "Server error while adding note")
		return
	}
	writeSuccess(w, http.StatusCreated, "Note added successfully", map[string]any{
		"note": created,
	})
}

func (r *Router) handleNoteSubroutes(w http.ResponseWriter, req *http.Request) {
	id := strings.TrimPrefix(req.URL.Path, "/api/note/")
	if id == "" {
		r.handleNoteList(w, req)
		return
	}
	if strings.Contains(id, "/") {
		r.notFound(w)
		return
	}
	switch req.Method {
	case http.MethodPut:
		r.handleNoteUpdate(w, req, id)
	case http.MethodDelete:
		r.handleNoteDelete(w, req, id)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleNoteList(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	user, ok := userFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for note list", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "Can't retrieve notes")
		return
	}
	notes, err := r.notes.List(req.Context(), user.ID)
	if err != nil {
		r.logger.Error("note list failed", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "Can't retrieve notes")
		return
	}
	writeSuccess(w, http.StatusOK, "Notes fetched successfully", map[string]any{
		"count": len(notes),
		"notes": notes,
	})
}

func (r *Router) handleNoteUpdate(w http.ResponseWriter, req *http.Request, id string) {
	user, ok := userFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for note update", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "Error updating note")
		return
	}
	var payload struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Title and description cannot be empty")
		return
	}
	updated, err := r.notes.Update(req.Context(), user.ID, id, payload.Title, payload.Description)
	if err != nil {
		switch {
		case errors.Is(err, note.ErrMissingFields):
			writeError(w, http.StatusBadRequest, "Title and description cannot be empty")
		case errors.Is(err, note.ErrNotFound):
			writeError(w, http.StatusNotFound, "Note not found")
		default:
			r.logger.Error("note update failed", "error", err, "user_id", user.ID, "note_id", id)
			writeError(w, http.StatusInternalServerError, "Error updating note")
		}
		return
	}
	writeSuccess(w, http.StatusOK, "Note updated successfully", map[string]any{
		"note": updated,
	})
}

func (r *Router) handleNoteDelete(w http.ResponseWriter, req *http.Request, id string) {
	user, ok := userFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for note delete", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "Error deleting note")
		return
	}
	if err := r.notes.Delete(req.Context(), user.ID, id); err != nil {
		if errors.Is(err, note.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Note not found")
			return
		}
		r.logger.Error("note delete failed", "error", err, "user_id", user.ID, "note_id", id)
		writeError(w, http.StatusInternalServerError, "Error deleting note")
		return
	}
	writeSuccess(w, http.StatusOK, "Note deleted successfully", nil)
}

func (r *Router) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(r.cookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   r.cookieSecure,
		SameSite: r.cookieSameSite,
	})
}

func (r *Router) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.cookieSecure,
		SameSite: r.cookieSameSite,
	})
}

// observe wraps a handler with the access log and request metrics.
func (r *Router) observe(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if user, ok := userFromContext(ctx); ok {
			fields = append(fields, "user_id", user.ID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
		r.recordRequestMetrics(req.Method, route, status, duration)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "Not found")
}
