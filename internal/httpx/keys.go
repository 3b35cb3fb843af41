package httpx

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/mhakimi/keyvault/internal/domain"
	"github.com/mhakimi/keyvault/internal/metrics"
)

// handleKeys implements the single action-dispatched vault endpoint:
//
//	OPTIONS /api/keys                          CORS preflight
//	GET     /api/keys?action=status&service=s  report status
//	POST    /api/keys?action=save&service=s    store encrypted key
//	POST    /api/keys?action=test&service=s    validate stored key
//	DELETE  /api/keys?action=revoke&service=s  revoke stored key
//
// Gate order is fixed: origin policy, then authentication, then rate
// limit, then dispatch. No gate may be skipped and no business logic runs
// for a rejected request.
func (h *Handler) handleKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.applyCORS(w, r) {
		h.observe(metrics.CounterOriginRejected)
		h.writeError(ctx, w, http.StatusForbidden, "Origin not allowed")
		return
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	identity, err := h.Auth.Authenticate(r.Header.Get("Authorization"))
	if err != nil {
		h.mapServiceError(ctx, w, domain.ErrUnauthenticated)
		return
	}

	action, err := domain.ParseAction(r.URL.Query().Get("action"))
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	service, err := domain.ParseServiceName(r.URL.Query().Get("service"))
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	if r.Method != action.Method() {
		h.writeError(ctx, w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	max := h.Limits.WriteMax
	if action == domain.ActionTest {
		max = h.Limits.TestMax
	}
	key := "api_keys:" + action.String() + ":" + service + "|" + identity.String() + "|" + clientIP(r)
	allowed, err := h.Limiter.Allow(ctx, key, h.Limits.Window, max)
	if err != nil {
		h.writeError(ctx, w, http.StatusInternalServerError, "Rate limit check failed")
		return
	}
	if !allowed {
		h.observe(metrics.CounterRateLimited)
		h.mapServiceError(ctx, w, domain.ErrRateLimited)
		return
	}

	switch action {
	case domain.ActionSave:
		h.handleSave(w, r, identity.String(), service)
	case domain.ActionStatus:
		h.handleStatus(w, r, identity.String(), service)
	case domain.ActionTest:
		h.handleTest(w, r, identity.String(), service)
	case domain.ActionRevoke:
		h.handleRevoke(w, r, identity.String(), service)
	}
}

// saveRequest is the save action's JSON body.
type saveRequest struct {
	APIKey string `json:"apiKey"`
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request, userID, service string) {
	ctx := r.Context()
	var req saveRequest
	body := http.MaxBytesReader(w, r.Body, h.MaxBody)
	defer body.Close()
	// A malformed body falls through with an empty key and fails
	// validation, mirroring the wire contract's 400.
	_ = json.NewDecoder(body).Decode(&req)

	if err := h.Service.Save(ctx, userID, service, req.APIKey); err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	h.observe(metrics.CounterKeysSaved)
	h.writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
	}{Success: true})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request, userID, service string) {
	ctx := r.Context()
	status, err := h.Service.Status(ctx, userID, service)
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleTest(w http.ResponseWriter, r *http.Request, userID, service string) {
	ctx := r.Context()
	res, err := h.Service.Test(ctx, userID, service)
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	h.observe(metrics.CounterKeysTested)
	if res.UpstreamErr != nil {
		h.writeJSON(w, http.StatusOK, struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}{Success: false, Error: res.UpstreamErr.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
	}{Success: res.Valid})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request, userID, service string) {
	ctx := r.Context()
	if err := h.Service.Revoke(ctx, userID, service); err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	h.observe(metrics.CounterKeysRevoked)
	h.writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
	}{Success: true})
}

// writeJSON renders a JSON response body with the given status.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// clientIP extracts the first hop of X-Forwarded-For, falling back to the
// connection's remote address. It feeds the rate-limit key only.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
