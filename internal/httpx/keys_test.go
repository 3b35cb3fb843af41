package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mhakimi/keyvault/internal/app"
	"github.com/mhakimi/keyvault/internal/auth"
	"github.com/mhakimi/keyvault/internal/domain"
)

// mockService records calls and returns canned results.
type mockService struct {
	saveErr    error
	savedKey   string
	savedUser  string
	savedSvc   string
	saveCalled bool

	status    app.Status
	statusErr error

	testRes    app.TestResult
	testErr    error
	testCalled bool

	revokeErr    error
	revokeCalled bool
}

func (m *mockService) Save(_ context.Context, userID, service, apiKey string) error {
	m.saveCalled = true
	m.savedUser, m.savedSvc, m.savedKey = userID, service, apiKey
	if m.saveErr != nil {
		return m.saveErr
	}
	return domain.ValidateAPIKey(apiKey)
}

func (m *mockService) Status(_ context.Context, _, _ string) (app.Status, error) {
	return m.status, m.statusErr
}

func (m *mockService) Test(_ context.Context, _, _ string) (app.TestResult, error) {
	m.testCalled = true
	return m.testRes, m.testErr
}

func (m *mockService) Revoke(_ context.Context, _, _ string) error {
	m.revokeCalled = true
	return m.revokeErr
}

// mockAuth authenticates any "Bearer ok-<user>" credential.
type mockAuth struct{ called bool }

func (m *mockAuth) Authenticate(bearer string) (auth.Identity, error) {
	m.called = true
	token := strings.TrimPrefix(strings.TrimSpace(bearer), "Bearer ")
	if user, ok := strings.CutPrefix(token, "ok-"); ok {
		return auth.Identity(user), nil
	}
	return "", domain.ErrUnauthenticated
}

// mockLimiter admits everything unless told otherwise.
type mockLimiter struct {
	deny   bool
	err    error
	keys   []string
	maxes  []int
	called bool
}

func (m *mockLimiter) Allow(_ context.Context, key string, _ time.Duration, max int) (bool, error) {
	m.called = true
	m.keys = append(m.keys, key)
	m.maxes = append(m.maxes, max)
	return !m.deny, m.err
}

func newTestHandler(svc *mockService) (*Handler, *mockAuth, *mockLimiter) {
	a := &mockAuth{}
	l := &mockLimiter{}
	policy := OriginPolicy{AllowedOrigins: []string{"https://app.example.com"}, AllowDev: true}
	h := New(svc, a, l, policy, RateLimits{Window: time.Minute, TestMax: 10, WriteMax: 30})
	return h, a, l
}

func do(h *Handler, method, target, bearer, origin string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestOriginRejectedBeforeAuth(t *testing.T) {
	svc := &mockService{}
	h, a, l := newTestHandler(svc)

	rec := do(h, http.MethodGet, "/api/keys?action=status", "ok-user-a", "https://evil.example.com", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "Origin not allowed" {
		t.Fatalf("error = %v", got)
	}
	if a.called {
		t.Fatal("authentication must not run for rejected origins")
	}
	if l.called || svc.saveCalled || svc.testCalled {
		t.Fatal("no business logic may run for rejected origins")
	}
}

func TestOriginAllowed(t *testing.T) {
	for _, origin := range []string{"", "https://app.example.com", "http://localhost:5173", "http://127.0.0.1:8080"} {
		h, _, _ := newTestHandler(&mockService{})
		rec := do(h, http.MethodGet, "/api/keys?action=status", "ok-user-a", origin, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("origin %q: status = %d, want 200", origin, rec.Code)
		}
		want := origin
		if origin == "" {
			want = "*"
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != want {
			t.Fatalf("origin %q: allow-origin = %q, want %q", origin, got, want)
		}
	}
}

func TestPreflight(t *testing.T) {
	h, a, _ := newTestHandler(&mockService{})
	rec := do(h, http.MethodOptions, "/api/keys", "", "http://localhost:5173", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("preflight must have no body, got %q", rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatal("missing CORS method header")
	}
	if a.called {
		t.Fatal("preflight must not authenticate")
	}
}

func TestUnauthorized(t *testing.T) {
	svc := &mockService{}
	h, _, l := newTestHandler(svc)

	for _, bearer := range []string{"", "garbage"} {
		rec := do(h, http.MethodGet, "/api/keys?action=status", bearer, "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("bearer %q: status = %d, want 401", bearer, rec.Code)
		}
		if got := decodeBody(t, rec)["error"]; got != "Unauthorized" {
			t.Fatalf("error = %v", got)
		}
	}
	if l.called {
		t.Fatal("rate limiter must not run for unauthenticated requests")
	}
}

func TestActionParsing(t *testing.T) {
	h, _, _ := newTestHandler(&mockService{})

	rec := do(h, http.MethodGet, "/api/keys", "ok-user-a", "", "")
	if rec.Code != http.StatusBadRequest || decodeBody(t, rec)["error"] != "Missing action" {
		t.Fatalf("missing action: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(h, http.MethodGet, "/api/keys?action=destroy", "ok-user-a", "", "")
	if rec.Code != http.StatusBadRequest || decodeBody(t, rec)["error"] != "Invalid action" {
		t.Fatalf("invalid action: %d %s", rec.Code, rec.Body.String())
	}

	// Wrong method for a valid action.
	rec = do(h, http.MethodGet, "/api/keys?action=save", "ok-user-a", "", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("wrong method: %d, want 405", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	svc := &mockService{}
	h, _, l := newTestHandler(svc)
	l.deny = true

	rec := do(h, http.MethodPost, "/api/keys?action=test&service=default", "ok-user-a", "", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if svc.testCalled {
		t.Fatal("service must not run for rate-limited requests")
	}
	if len(l.keys) != 1 || !strings.HasPrefix(l.keys[0], "api_keys:test:default|user-a|") {
		t.Fatalf("unexpected limiter key: %v", l.keys)
	}
	if l.maxes[0] != 10 {
		t.Fatalf("test action max = %d, want 10", l.maxes[0])
	}

	// Limiter infrastructure failure is a 500, not a silent admit.
	l.deny = false
	l.err = errors.New("db locked")
	rec = do(h, http.MethodPost, "/api/keys?action=test", "ok-user-a", "", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("limiter error: status = %d, want 500", rec.Code)
	}
}

func TestRateLimitUsesWriteMaxForSave(t *testing.T) {
	h, _, l := newTestHandler(&mockService{})
	do(h, http.MethodPost, "/api/keys?action=save", "ok-user-a", "", `{"apiKey":"mysecretkey123"}`)
	if len(l.maxes) != 1 || l.maxes[0] != 30 {
		t.Fatalf("save action max = %v, want [30]", l.maxes)
	}
}

func TestSave(t *testing.T) {
	svc := &mockService{}
	h, _, _ := newTestHandler(svc)

	rec := do(h, http.MethodPost, "/api/keys?action=save&service=openai", "ok-user-a", "", `{"apiKey":"mysecretkey123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["success"]; got != true {
		t.Fatalf("success = %v", got)
	}
	if svc.savedUser != "user-a" || svc.savedSvc != "openai" || svc.savedKey != "mysecretkey123" {
		t.Fatalf("service got (%s,%s,%s)", svc.savedUser, svc.savedSvc, svc.savedKey)
	}
}

func TestSaveValidation(t *testing.T) {
	svc := &mockService{}
	h, _, _ := newTestHandler(svc)

	// Too-short key.
	rec := do(h, http.MethodPost, "/api/keys?action=save", "ok-user-a", "", `{"apiKey":"123456789"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short key: status = %d, want 400", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "Invalid API key format" {
		t.Fatalf("error = %v", got)
	}

	// Malformed body behaves like an empty key.
	rec = do(h, http.MethodPost, "/api/keys?action=save", "ok-user-a", "", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body: status = %d, want 400", rec.Code)
	}

	// Invalid service name.
	rec = do(h, http.MethodPost, "/api/keys?action=save&service=Bad%20Name", "ok-user-a", "", `{"apiKey":"mysecretkey123"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad service: status = %d, want 400", rec.Code)
	}
}

func TestStatusResponses(t *testing.T) {
	valid := true
	at := time.Unix(1700000000, 0).UTC()
	svc := &mockService{status: app.Status{HasKey: true, IsValid: &valid, LastValidated: &at, CreatedAt: &at, UpdatedAt: &at}}
	h, _, _ := newTestHandler(svc)

	rec := do(h, http.MethodGet, "/api/keys?action=status", "ok-user-a", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["hasKey"] != true || body["isValid"] != true {
		t.Fatalf("body = %v", body)
	}
	if body["lastValidatedAt"] == nil || body["createdAt"] == nil {
		t.Fatalf("timestamps missing: %v", body)
	}

	// Absent key: hasKey=false with null fields.
	svc2 := &mockService{status: app.Status{}}
	h2, _, _ := newTestHandler(svc2)
	rec = do(h2, http.MethodGet, "/api/keys?action=status", "ok-user-a", "", "")
	body = decodeBody(t, rec)
	if body["hasKey"] != false || body["isValid"] != nil {
		t.Fatalf("absent body = %v", body)
	}
}

func TestTestResponses(t *testing.T) {
	// Valid key.
	svc := &mockService{testRes: app.TestResult{Valid: true}}
	h, _, _ := newTestHandler(svc)
	rec := do(h, http.MethodPost, "/api/keys?action=test", "ok-user-a", "", "")
	if rec.Code != http.StatusOK || decodeBody(t, rec)["success"] != true {
		t.Fatalf("valid: %d %s", rec.Code, rec.Body.String())
	}

	// Upstream failure: success=false with a message, still 200.
	svc = &mockService{testRes: app.TestResult{Valid: false, UpstreamErr: errors.New("upstream check failed: status 503")}}
	h, _, _ = newTestHandler(svc)
	rec = do(h, http.MethodPost, "/api/keys?action=test", "ok-user-a", "", "")
	body := decodeBody(t, rec)
	if rec.Code != http.StatusOK || body["success"] != false || body["error"] == nil {
		t.Fatalf("upstream: %d %s", rec.Code, rec.Body.String())
	}

	// No key stored.
	svc = &mockService{testErr: domain.ErrNotFound}
	h, _, _ = newTestHandler(svc)
	rec = do(h, http.MethodPost, "/api/keys?action=test", "ok-user-a", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("not found: %d, want 404", rec.Code)
	}

	// Decryption failure is a generic 500.
	svc = &mockService{testErr: app.ErrDecrypt}
	h, _, _ = newTestHandler(svc)
	rec = do(h, http.MethodPost, "/api/keys?action=test", "ok-user-a", "", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("decrypt: %d, want 500", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "Internal server error" {
		t.Fatalf("decrypt error leaked detail: %v", got)
	}
}

func TestRevoke(t *testing.T) {
	svc := &mockService{}
	h, _, _ := newTestHandler(svc)
	rec := do(h, http.MethodDelete, "/api/keys?action=revoke", "ok-user-a", "", "")
	if rec.Code != http.StatusOK || decodeBody(t, rec)["success"] != true {
		t.Fatalf("revoke: %d %s", rec.Code, rec.Body.String())
	}
	if !svc.revokeCalled {
		t.Fatal("revoke not dispatched")
	}
}

func TestSecurityHeaders(t *testing.T) {
	h, _, _ := newTestHandler(&mockService{})
	rec := do(h, http.MethodGet, "/api/keys?action=status", "ok-user-a", "", "")
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatal("missing no-store")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing nosniff")
	}
	if rec.Header().Get(CorrelationIDHeader) == "" {
		t.Fatal("missing correlation id")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	if got := clientIP(req); got != "10.1.2.3" {
		t.Fatalf("remote addr ip = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("xff ip = %q", got)
	}
}
