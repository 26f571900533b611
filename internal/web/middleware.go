package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/crimson-sun/nocdash/internal/auth"
	"github.com/crimson-sun/nocdash/internal/session"
)

const (
	tokenCookie   = "nocdash_token"
	sessionCookie = "nocdash_session"

	// operator is the identity used when login is disabled.
	operator = "operator"
)

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// identify attaches the operator identity to the request context. With login
// enabled it requires a valid token cookie and redirects to /login otherwise;
// without it every visitor is an admin keyed by a server-issued session cookie.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			id := auth.Identity{Username: operator, Role: auth.RoleAdmin, SessionID: s.sessionFromCookie(w, r)}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
			return
		}

		c, err := r.Cookie(tokenCookie)
		if err != nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		id, err := s.auth.Parse(c.Value)
		if err != nil {
			slog.Debug("rejected session token", "error", err)
			clearCookie(w, tokenCookie)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// sessionFromCookie returns the session id carried by the request when it names a
// live session, and otherwise issues a fresh one. Client-chosen ids are never
// adopted; the session itself is stored only once a handler updates it.
func (s *Server) sessionFromCookie(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && session.ValidID(c.Value) && s.sessions.Known(c.Value) {
		return c.Value
	}
	sid := session.NewID()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sid
}

// requireDelete rejects operators whose role may not delete reports.
func requireDelete(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.FromContext(r.Context())
		if !ok || !id.Role.CanDelete() {
			slog.Warn("delete refused", "user", id.Username, "role", id.Role)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
