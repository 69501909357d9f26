package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rewear/rewear/internal/auth"
	"github.com/rewear/rewear/internal/clock"
	"github.com/rewear/rewear/internal/db"
	"github.com/rewear/rewear/internal/metrics"
	"github.com/rewear/rewear/internal/model"
	"github.com/rewear/rewear/internal/store"
	"github.com/rewear/rewear/internal/swap"
)

const testJWTSecret = "test-secret"

type fakeUploader struct {
	mu    sync.Mutex
	files []string
}

func (u *fakeUploader) Upload(_ context.Context, filename string, data []byte) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.files = append(u.files, filename)
	return fmt.Sprintf("https://cdn.example.com/%d/%s", len(u.files), filename), nil
}

type testEnv struct {
	t        *testing.T
	server   *httptest.Server
	ctx      context.Context
	db       *sql.DB
	uploader *fakeUploader
}

func setupTestEnv(t *testing.T, limiter *RateLimiter) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)
	m := metrics.New()
	engine := &swap.Engine{DB: database, Clock: clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)), Metrics: m.Swaps}
	uploader := &fakeUploader{}

	router := NewRouter(Options{
		DB:          database,
		JWTSecret:   testJWTSecret,
		Swaps:       engine,
		Uploader:    uploader,
		Metrics:     m,
		RateLimiter: limiter,
	})
	server := httptest.NewServer(LoggingMiddleware(router))
	t.Cleanup(server.Close)

	return &testEnv{
		t:        t,
		server:   server,
		ctx:      context.Background(),
		db:       database,
		uploader: uploader,
	}
}

// user creates an account directly in the store and returns it with a token.
func (e *testEnv) user(name, role string) (*model.User, string) {
	e.t.Helper()
	u, err := store.CreateUser(e.ctx, e.db, name, name+"@example.com", "hash", role)
	if err != nil {
		e.t.Fatalf("CreateUser: %v", err)
	}
	token, err := auth.GenerateToken(testJWTSecret, u.ID, u.Role)
	if err != nil {
		e.t.Fatalf("GenerateToken: %v", err)
	}
	return u, token
}

func (e *testEnv) do(method, path, token string, body any) *http.Response {
	e.t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		e.t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	e.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: expected %d, got %d: %s",
			resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, body)
	}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

var validItem = map[string]any{
	"title":        "Denim jacket",
	"description":  "Barely worn",
	"size":         "M",
	"condition":    "Like New",
	"category":     "Outerwear",
	"points_value": 50,
	"tags":         []string{"denim", "vintage"},
	"images":       []string{"https://cdn.example.com/a.jpg"},
}

// listing creates an item through the API and approves it as admin.
func (e *testEnv) listing(ownerToken, adminToken string) model.Item {
	e.t.Helper()
	resp := e.do("POST", "/api/items", ownerToken, validItem)
	expectStatus(e.t, resp, http.StatusCreated)
	item := decode[model.Item](e.t, resp)

	resp = e.do("PATCH", fmt.Sprintf("/api/items/%d/approve", item.ID), adminToken, map[string]bool{"is_approved": true})
	expectStatus(e.t, resp, http.StatusOK)
	return decode[model.Item](e.t, resp)
}

func TestHealthAndRequestID(t *testing.T) {
	env := setupTestEnv(t, nil)

	resp := env.do("GET", "/api/health", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[map[string]string](t, resp); got["status"] != "OK" {
		t.Errorf("expected status OK, got %v", got)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestRegister(t *testing.T) {
	env := setupTestEnv(t, nil)

	body := map[string]string{"name": "Alice", "email": " Alice@Example.com ", "password": "longenough", "location": "Ljubljana"}
	resp := env.do("POST", "/api/users/register", "", body)
	expectStatus(t, resp, http.StatusCreated)
	u := decode[model.User](t, resp)
	if u.Points != model.StartingPoints {
		t.Errorf("expected %d starting points, got %d", model.StartingPoints, u.Points)
	}
	if u.Email != "alice@example.com" {
		t.Errorf("expected normalized email, got %q", u.Email)
	}
	if u.Location != "Ljubljana" {
		t.Errorf("expected location, got %q", u.Location)
	}

	resp = env.do("POST", "/api/users/register", "", body)
	expectStatus(t, resp, http.StatusConflict)

	resp = env.do("POST", "/api/users/register", "", map[string]string{"name": "Bob", "email": "nope", "password": "longenough"})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = env.do("POST", "/api/users/register", "", map[string]string{"name": "Bob", "email": "bob@example.com", "password": "short"})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestAuthentication(t *testing.T) {
	env := setupTestEnv(t, nil)
	u, token := env.user("alice", model.RoleUser)

	expectStatus(t, env.do("GET", "/api/users/profile", "", nil), http.StatusUnauthorized)
	expectStatus(t, env.do("GET", "/api/users/profile", "garbage", nil), http.StatusUnauthorized)

	ghost, _ := auth.GenerateToken(testJWTSecret, 9999, model.RoleUser)
	expectStatus(t, env.do("GET", "/api/users/profile", ghost, nil), http.StatusUnauthorized)

	resp := env.do("GET", "/api/users/profile", token, nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[model.User](t, resp); got.ID != u.ID {
		t.Errorf("expected profile of %d, got %d", u.ID, got.ID)
	}

	if err := store.SetUserBanned(env.ctx, env.db, u.ID, true); err != nil {
		t.Fatal(err)
	}
	expectStatus(t, env.do("GET", "/api/users/profile", token, nil), http.StatusForbidden)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := setupTestEnv(t, nil)
	u, userToken := env.user("alice", model.RoleUser)
	admin, adminToken := env.user("admin", model.RoleAdmin)

	expectStatus(t, env.do("GET", "/api/users/admin/all", userToken, nil), http.StatusForbidden)

	resp := env.do("GET", "/api/users/admin/all?search=ALI", adminToken, nil)
	expectStatus(t, resp, http.StatusOK)
	page := decode[struct {
		Users []model.User `json:"users"`
		Total int          `json:"total"`
	}](t, resp)
	if page.Total != 1 || len(page.Users) != 1 || page.Users[0].ID != u.ID {
		t.Errorf("expected only alice, got %+v", page)
	}

	resp = env.do("PATCH", fmt.Sprintf("/api/users/admin/%d/role", u.ID), adminToken, map[string]string{"role": "superuser"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp = env.do("PATCH", fmt.Sprintf("/api/users/admin/%d/role", u.ID), adminToken, map[string]string{"role": model.RoleAdmin})
	expectStatus(t, resp, http.StatusOK)

	resp = env.do("PATCH", fmt.Sprintf("/api/users/admin/%d/ban", admin.ID), adminToken, map[string]bool{"is_banned": true})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = env.do("GET", fmt.Sprintf("/api/users/admin/%d", u.ID), adminToken, nil)
	expectStatus(t, resp, http.StatusOK)

	expectStatus(t, env.do("GET", "/api/users/admin/9999", adminToken, nil), http.StatusNotFound)
}

func TestItemLifecycle(t *testing.T) {
	env := setupTestEnv(t, nil)
	_, ownerToken := env.user("owner", model.RoleUser)
	_, strangerToken := env.user("stranger", model.RoleUser)
	_, adminToken := env.user("admin", model.RoleAdmin)

	resp := env.do("POST", "/api/items", ownerToken, validItem)
	expectStatus(t, resp, http.StatusCreated)
	item := decode[model.Item](t, resp)
	if item.IsApproved || !item.IsAvailable {
		t.Fatalf("new item should be unapproved and available: %+v", item)
	}
	if len(item.Tags) != 2 || len(item.Images) != 1 {
		t.Errorf("expected tags and images to round-trip, got %+v", item)
	}

	itemPath := fmt.Sprintf("/api/items/%d", item.ID)

	// Hidden from the public until approved.
	resp = env.do("GET", "/api/items", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[struct{ Total int }](t, resp); got.Total != 0 {
		t.Errorf("unapproved item must not be listed, total=%d", got.Total)
	}
	expectStatus(t, env.do("GET", itemPath, "", nil), http.StatusNotFound)
	expectStatus(t, env.do("GET", itemPath, ownerToken, nil), http.StatusOK)

	resp = env.do("GET", "/api/users/admin/pending-items", adminToken, nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[struct{ Total int }](t, resp); got.Total != 1 {
		t.Errorf("expected one pending item, got %d", got.Total)
	}

	expectStatus(t, env.do("PATCH", itemPath+"/approve", ownerToken, map[string]bool{"is_approved": true}), http.StatusForbidden)
	resp = env.do("PATCH", itemPath+"/approve", adminToken, map[string]bool{"is_approved": true})
	expectStatus(t, resp, http.StatusOK)
	if approved := decode[model.Item](t, resp); !approved.IsApproved || approved.ApprovedBy == nil {
		t.Errorf("expected approval to be recorded, got %+v", approved)
	}

	resp = env.do("GET", "/api/items?search=DENIM&category=Outerwear&min_points=40&max_points=60", "", nil)
	expectStatus(t, resp, http.StatusOK)
	listing := decode[struct {
		Items       []model.Item `json:"items"`
		Total       int          `json:"total"`
		TotalPages  int          `json:"total_pages"`
		CurrentPage int          `json:"current_page"`
	}](t, resp)
	if listing.Total != 1 || listing.TotalPages != 1 || listing.CurrentPage != 1 {
		t.Errorf("unexpected listing envelope: %+v", listing)
	}

	resp = env.do("GET", "/api/items?category=Shoes", "", nil)
	if got := decode[struct{ Total int }](t, resp); got.Total != 0 {
		t.Errorf("category filter ignored, total=%d", got.Total)
	}

	// Owner edits; availability is not writable and strangers are refused.
	expectStatus(t, env.do("PUT", itemPath, strangerToken, map[string]any{"title": "Mine now"}), http.StatusForbidden)
	expectStatus(t, env.do("PUT", itemPath, ownerToken, map[string]any{"points_value": 5000}), http.StatusBadRequest)
	resp = env.do("PUT", itemPath, ownerToken, map[string]any{"title": "Blue denim jacket", "is_available": false})
	expectStatus(t, resp, http.StatusOK)
	updated := decode[model.Item](t, resp)
	if updated.Title != "Blue denim jacket" || !updated.IsAvailable {
		t.Errorf("expected title change only, got %+v", updated)
	}

	resp = env.do("GET", "/api/items/mine", ownerToken, nil)
	expectStatus(t, resp, http.StatusOK)
	if mine := decode[[]model.Item](t, resp); len(mine) != 1 {
		t.Errorf("expected one own item, got %d", len(mine))
	}

	expectStatus(t, env.do("DELETE", itemPath, strangerToken, nil), http.StatusForbidden)
	expectStatus(t, env.do("DELETE", itemPath, adminToken, nil), http.StatusOK)
	expectStatus(t, env.do("GET", itemPath, adminToken, nil), http.StatusNotFound)
}

func TestCreateItemValidation(t *testing.T) {
	env := setupTestEnv(t, nil)
	_, token := env.user("owner", model.RoleUser)

	bad := func(mutate func(map[string]any)) map[string]any {
		m := map[string]any{}
		for k, v := range validItem {
			m[k] = v
		}
		mutate(m)
		return m
	}

	cases := map[string]map[string]any{
		"no title":     bad(func(m map[string]any) { delete(m, "title") }),
		"bad size":     bad(func(m map[string]any) { m["size"] = "XXXL" }),
		"cheap":        bad(func(m map[string]any) { m["points_value"] = 5 }),
		"many images":  bad(func(m map[string]any) { m["images"] = []string{"1", "2", "3", "4", "5", "6"} }),
		"bad category": bad(func(m map[string]any) { m["category"] = "Hats" }),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			expectStatus(t, env.do("POST", "/api/items", token, body), http.StatusBadRequest)
		})
	}
}

func TestCreateItemMultipart(t *testing.T) {
	env := setupTestEnv(t, nil)
	_, token := env.user("owner", model.RoleUser)

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{255, 0, 0, 255})
	var photo bytes.Buffer
	png.Encode(&photo, img)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range map[string]string{
		"title": "Wool scarf", "description": "Warm", "size": "One Size",
		"condition": "Good", "category": "Accessories", "points_value": "20", "tags": "wool,winter",
	} {
		mw.WriteField(k, v)
	}
	for _, name := range []string{"front.png", "back.png"} {
		fw, _ := mw.CreateFormFile("images", name)
		fw.Write(photo.Bytes())
	}
	mw.Close()

	req, _ := http.NewRequest("POST", env.server.URL+"/api/items", &body)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	expectStatus(t, resp, http.StatusCreated)
	item := decode[model.Item](t, resp)
	if len(item.Images) != 2 || !strings.HasPrefix(item.Images[0], "https://cdn.example.com/") {
		t.Errorf("expected uploaded image URLs, got %v", item.Images)
	}
	if len(item.Tags) != 2 {
		t.Errorf("expected comma-separated tags to be split, got %v", item.Tags)
	}
	if len(env.uploader.files) != 2 {
		t.Errorf("expected 2 uploads, got %d", len(env.uploader.files))
	}
}

func TestSwapFlowOverHTTP(t *testing.T) {
	env := setupTestEnv(t, nil)
	a, aToken := env.user("alice", model.RoleUser)
	b, bToken := env.user("bob", model.RoleUser)
	_, adminToken := env.user("admin", model.RoleAdmin)

	x := env.listing(bToken, adminToken)

	req := map[string]any{"requested_item_id": x.ID, "type": "points", "points_offered": 50, "message": "hi"}
	expectStatus(t, env.do("POST", "/api/swaps", bToken, req), http.StatusForbidden)
	expectStatus(t, env.do("POST", "/api/swaps", aToken, map[string]any{"requested_item_id": x.ID, "type": "points", "points_offered": 500}), http.StatusBadRequest)

	resp := env.do("POST", "/api/swaps", aToken, req)
	expectStatus(t, resp, http.StatusCreated)
	s := decode[model.Swap](t, resp)

	expectStatus(t, env.do("POST", "/api/swaps", aToken, req), http.StatusConflict)

	resp = env.do("GET", "/api/swaps/my-items-requests", bToken, nil)
	expectStatus(t, resp, http.StatusOK)
	if incoming := decode[[]model.Swap](t, resp); len(incoming) != 1 || incoming[0].RequesterName != "alice" {
		t.Errorf("expected one incoming request from alice, got %+v", incoming)
	}

	swapPath := fmt.Sprintf("/api/swaps/%d", s.ID)
	expectStatus(t, env.do("PATCH", swapPath+"/respond", aToken, map[string]string{"status": "accepted"}), http.StatusForbidden)
	expectStatus(t, env.do("PATCH", swapPath+"/respond", bToken, map[string]string{"status": "completed"}), http.StatusBadRequest)

	resp = env.do("PATCH", swapPath+"/respond", bToken, map[string]string{"status": "accepted", "message": "enjoy"})
	expectStatus(t, resp, http.StatusOK)
	if got := decode[model.Swap](t, resp); got.Status != model.SwapStatusAccepted {
		t.Errorf("expected accepted, got %s", got.Status)
	}

	expectStatus(t, env.do("PATCH", swapPath+"/respond", bToken, map[string]string{"status": "rejected"}), http.StatusConflict)
	expectStatus(t, env.do("PATCH", swapPath+"/cancel", aToken, nil), http.StatusConflict)

	for _, tc := range []struct {
		token string
		id    int64
		want  int
	}{{aToken, a.ID, 50}, {bToken, b.ID, 150}} {
		resp := env.do("GET", "/api/users/dashboard", tc.token, nil)
		expectStatus(t, resp, http.StatusOK)
		if d := decode[store.Dashboard](t, resp); d.Points != tc.want {
			t.Errorf("user %d: expected %d points, got %d", tc.id, tc.want, d.Points)
		}
	}

	resp = env.do("GET", "/api/swaps/history", bToken, nil)
	expectStatus(t, resp, http.StatusOK)
	if history := decode[[]model.Swap](t, resp); len(history) != 1 {
		t.Errorf("expected one history entry for the owner, got %d", len(history))
	}

	// Items referenced by a swap keep their row.
	expectStatus(t, env.do("DELETE", fmt.Sprintf("/api/items/%d", x.ID), bToken, nil), http.StatusConflict)
}

func TestCancelWithoutBody(t *testing.T) {
	env := setupTestEnv(t, nil)
	_, aToken := env.user("alice", model.RoleUser)
	_, bToken := env.user("bob", model.RoleUser)
	_, adminToken := env.user("admin", model.RoleAdmin)
	x := env.listing(bToken, adminToken)

	resp := env.do("POST", "/api/swaps", aToken, map[string]any{"requested_item_id": x.ID, "type": "points", "points_offered": 10})
	expectStatus(t, resp, http.StatusCreated)
	s := decode[model.Swap](t, resp)

	path := fmt.Sprintf("/api/swaps/%d/cancel", s.ID)
	expectStatus(t, env.do("PATCH", path, bToken, nil), http.StatusForbidden)

	resp = env.do("PATCH", path, aToken, nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[model.Swap](t, resp); got.Status != model.SwapStatusCancelled || got.CancelledBy == nil {
		t.Errorf("expected cancelled swap with cancelled_by, got %+v", got)
	}

	expectStatus(t, env.do("GET", fmt.Sprintf("/api/swaps/%d", s.ID), aToken, nil), http.StatusOK)
	expectStatus(t, env.do("GET", "/api/swaps/9999", aToken, nil), http.StatusNotFound)
}

func TestRateLimit(t *testing.T) {
	env := setupTestEnv(t, NewRateLimiter(0.001, 1))

	body := map[string]string{"name": "A", "email": "a@example.com", "password": "longenough"}
	expectStatus(t, env.do("POST", "/api/users/register", "", body), http.StatusCreated)

	resp := env.do("POST", "/api/users/register", "", body)
	expectStatus(t, resp, http.StatusTooManyRequests)
	if resp.Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	// Reads are not limited.
	expectStatus(t, env.do("GET", "/api/items", "", nil), http.StatusOK)
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Now()
	rl.get("a", now.Add(-time.Hour))
	rl.get("b", now)

	rl.Cleanup(now)
	if _, ok := rl.limiters["a"]; ok {
		t.Error("idle limiter should be dropped")
	}
	if _, ok := rl.limiters["b"]; !ok {
		t.Error("active limiter should be kept")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestEnv(t, nil)
	env.do("GET", "/api/health", "", nil)

	resp := env.do("GET", "/metrics", "", nil)
	expectStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `rewear_http_requests_total{method="GET",path="/api/health",status="200"}`) {
		t.Errorf("expected health request to be counted:\n%s", body)
	}
}
