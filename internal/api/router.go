package api

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/rewear/rewear/internal/metrics"
	"github.com/rewear/rewear/internal/swap"
)

// PhotoUploader stores a photo and returns its public URL.
type PhotoUploader interface {
	Upload(ctx context.Context, filename string, data []byte) (string, error)
}

// Options configures the API router.
type Options struct {
	DB        *sql.DB
	JWTSecret string
	Swaps     *swap.Engine

	// Optional. A nil Uploader disables multipart photo uploads, a nil
	// Metrics disables /metrics and a nil RateLimiter disables limiting.
	Uploader    PhotoUploader
	Metrics     *metrics.Metrics
	RateLimiter *RateLimiter
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(opts Options) http.Handler {
	mux := http.NewServeMux()

	itemsHandler := &ItemsHandler{DB: opts.DB, Uploader: opts.Uploader, Clock: opts.Swaps.Clock}
	usersHandler := &UsersHandler{DB: opts.DB}
	swapsHandler := &SwapsHandler{Engine: opts.Swaps}

	authMW := AuthMiddleware(opts.JWTSecret, opts.DB)
	optionalAuth := OptionalAuth(opts.JWTSecret, opts.DB)
	limit := func(h http.Handler) http.Handler { return h }
	if opts.RateLimiter != nil {
		limit = opts.RateLimiter.Handler
	}
	admin := func(h http.HandlerFunc) http.Handler { return authMW(RequireAdmin(h)) }
	user := func(h http.HandlerFunc) http.Handler { return authMW(h) }
	limited := func(h http.HandlerFunc) http.Handler { return authMW(limit(h)) }

	mux.HandleFunc("GET /api/health", Health)

	// Items: browsing is public, writes need an account.
	mux.HandleFunc("GET /api/items", itemsHandler.List)
	mux.Handle("GET /api/items/{id}", optionalAuth(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("GET /api/items/mine", user(itemsHandler.Mine))
	mux.Handle("POST /api/items", limited(itemsHandler.Create))
	mux.Handle("PUT /api/items/{id}", user(itemsHandler.Update))
	mux.Handle("DELETE /api/items/{id}", user(itemsHandler.Delete))
	mux.Handle("PATCH /api/items/{id}/approve", admin(itemsHandler.Approve))

	// Users.
	mux.Handle("POST /api/users/register", limit(http.HandlerFunc(usersHandler.Register)))
	mux.Handle("GET /api/users/profile", user(usersHandler.Profile))
	mux.Handle("PUT /api/users/profile", user(usersHandler.UpdateProfile))
	mux.Handle("GET /api/users/dashboard", user(usersHandler.Dashboard))
	mux.Handle("GET /api/users/admin/all", admin(usersHandler.List))
	mux.Handle("GET /api/users/admin/pending-items", admin(itemsHandler.Pending))
	mux.Handle("GET /api/users/admin/{id}", admin(usersHandler.Get))
	mux.Handle("PATCH /api/users/admin/{id}/ban", admin(usersHandler.SetBanned))
	mux.Handle("PATCH /api/users/admin/{id}/role", admin(usersHandler.SetRole))

	// Swaps.
	mux.Handle("POST /api/swaps", limited(swapsHandler.Create))
	mux.Handle("GET /api/swaps/my-requests", user(swapsHandler.MyRequests))
	mux.Handle("GET /api/swaps/my-items-requests", user(swapsHandler.Incoming))
	mux.Handle("GET /api/swaps/history", user(swapsHandler.History))
	mux.Handle("GET /api/swaps/{id}", user(swapsHandler.Get))
	mux.Handle("PATCH /api/swaps/{id}/respond", limited(swapsHandler.Respond))
	mux.Handle("PATCH /api/swaps/{id}/cancel", limited(swapsHandler.Cancel))

	if opts.Metrics == nil {
		return mux
	}
	mux.Handle("GET /metrics", opts.Metrics.Handler())
	return opts.Metrics.InstrumentHandler(mux)
}

// Health handles GET /api/health.
func Health(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "OK"})
}
