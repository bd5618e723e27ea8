package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/Tirtha134/NoteApp-backend/internal/domain"
	"github.com/Tirtha134/NoteApp-backend/internal/service/auth"
)

type authContextKey string

const contextKeyUser authContextKey = "noteapp-auth-user"

// sessionCookieName is the cookie carrying the signed session token.
const sessionCookieName = "token"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request carries a valid session cookie before
// invoking the handler. The resolved user is re-read from the store on
// every protected request; nothing is cached.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureAuth validates the session cookie and enriches the context with
// the authenticated user.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, *domain.User, bool) {
	cookie, err := req.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "No token, authorization denied")
		return req.Context(), nil, false
	}
	user, err := r.auth.Authorize(req.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			r.logger.Warn("token references deleted user", "path", req.URL.Path)
			writeError(w, http.StatusUnauthorized, "User not found")
			return req.Context(), nil, false
		}
		r.logger.Warn("token validation failed", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return req.Context(), nil, false
	}
	ctx := context.WithValue(req.Context(), contextKeyUser, user)
	return ctx, user, true
}

// userFromContext extracts the authenticated user from context.
func userFromContext(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(contextKeyUser).(*domain.User)
	return user, ok
}
