package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rewear/rewear/internal/auth"
	"github.com/rewear/rewear/internal/model"
	"github.com/rewear/rewear/internal/policy"
	"github.com/rewear/rewear/internal/store"
)

type contextKey string

const (
	userKey      contextKey = "user"
	requestIDKey contextKey = "request_id"
)

// authenticate resolves the bearer token on r to a stored user. It writes
// the error response itself and returns nil when the request must stop.
func authenticate(w http.ResponseWriter, r *http.Request, secret string, db *sql.DB) *model.User {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		jsonError(w, http.StatusUnauthorized, "missing or invalid authorization header")
		return nil
	}

	claims, err := auth.ValidateToken(secret, strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		jsonError(w, http.StatusUnauthorized, "invalid token")
		return nil
	}

	user, err := store.GetUser(r.Context(), db, claims.UserID)
	if err != nil {
		writeError(w, r, err)
		return nil
	}
	if user == nil {
		jsonError(w, http.StatusUnauthorized, "user not found")
		return nil
	}
	if policy.IsBanned(user) {
		jsonError(w, http.StatusForbidden, "account is banned")
		return nil
	}
	return user
}

// AuthMiddleware validates the JWT from the Authorization header, loads the
// caller from the user store and adds it to the context. Unknown users get
// 401, banned users 403.
func AuthMiddleware(secret string, db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := authenticate(w, r, secret, db)
			if user == nil {
				return
			}
			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches the caller when a bearer token is present and
// continues anonymously otherwise. A present but invalid token is still
// rejected.
func OptionalAuth(secret string, db *sql.DB) func(http.Handler) http.Handler {
	required := AuthMiddleware(secret, db)
	return func(next http.Handler) http.Handler {
		withUser := required(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			withUser.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin rejects callers without the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r.Context())
		if user == nil {
			jsonError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		if !policy.IsAdmin(user) {
			jsonError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CurrentUser returns the authenticated caller, or nil.
func CurrentUser(ctx context.Context) *model.User {
	user, _ := ctx.Value(userKey).(*model.User)
	return user
}

// RequestID returns the request ID assigned by LoggingMiddleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware assigns a request ID (reusing a valid incoming
// X-Request-ID) and logs method, path, status and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, id))

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		slog.Info("request",
			"method", r.Method,
			"path", r.URL.RequestURI(),
			"status", rec.status,
			"duration", time.Since(start).Round(time.Millisecond),
			"request_id", id,
		)
	})
}
