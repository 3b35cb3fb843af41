package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// decodeStatus parses a health endpoint's JSON body.
func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) statusBody {
	t.Helper()
	var body statusBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHealthz(t *testing.T) {
	h, _, _ := newTestHandler(&mockService{})
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || decodeStatus(t, rec).Status != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("healthz content type: %q", ct)
	}
}

func TestReadyz(t *testing.T) {
	h, _, _ := newTestHandler(&mockService{})

	// No probe configured: always ready.
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK || decodeStatus(t, rec).Status != "ready" {
		t.Fatalf("readyz without probe: %d %q", rec.Code, rec.Body.String())
	}

	h.Readiness = func(context.Context) error { return errors.New("db down") }
	rec = httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz failing probe: %d, want 503", rec.Code)
	}

	h.Readiness = func(context.Context) error { return nil }
	rec = httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK || decodeStatus(t, rec).Status != "ready" {
		t.Fatalf("readyz passing probe: %d %q", rec.Code, rec.Body.String())
	}
}

func TestCorrelationIDMiddleware(t *testing.T) {
	var gotCID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCID, _ = GetCorrelationID(r.Context())
	})
	mw := CorrelationIDMiddleware(inner)

	// Inbound ID is reused.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationIDHeader, "cid-123")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	if gotCID != "cid-123" || rec.Header().Get(CorrelationIDHeader) != "cid-123" {
		t.Fatalf("inbound cid not propagated: ctx=%q header=%q", gotCID, rec.Header().Get(CorrelationIDHeader))
	}

	// Absent ID is generated.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	if gotCID == "" || rec.Header().Get(CorrelationIDHeader) != gotCID {
		t.Fatalf("generated cid mismatch: ctx=%q header=%q", gotCID, rec.Header().Get(CorrelationIDHeader))
	}
}
