package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mhakimi/keyvault/internal/app"
	"github.com/mhakimi/keyvault/internal/domain"
)

// writeError writes a JSON error body with given status code.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg})
	if cid, ok := GetCorrelationID(ctx); ok {
		slog.Debug("wrote error response", "cid", cid, "status", code, "msg", msg)
	}
}

// mapServiceError maps domain/store/service errors to HTTP responses.
// Internal failures (decryption, storage) are logged by class only and
// answered with a generic message; no cryptographic detail crosses the wire.
func (h *Handler) mapServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	cid, _ := GetCorrelationID(ctx)
	switch {
	case errors.Is(err, domain.ErrInvalidAPIKey):
		slog.Warn("service error", "cid", cid, "code", "invalid_api_key")
		h.writeError(ctx, w, http.StatusBadRequest, "Invalid API key format")
	case errors.Is(err, domain.ErrInvalidService):
		slog.Warn("service error", "cid", cid, "code", "invalid_service")
		h.writeError(ctx, w, http.StatusBadRequest, "Invalid service name")
	case errors.Is(err, domain.ErrMissingAction):
		slog.Warn("service error", "cid", cid, "code", "missing_action")
		h.writeError(ctx, w, http.StatusBadRequest, "Missing action")
	case errors.Is(err, domain.ErrInvalidAction):
		slog.Warn("service error", "cid", cid, "code", "invalid_action")
		h.writeError(ctx, w, http.StatusBadRequest, "Invalid action")
	case errors.Is(err, domain.ErrUnauthenticated):
		slog.Info("service error", "cid", cid, "code", "unauthenticated")
		h.writeError(ctx, w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, domain.ErrNotFound):
		slog.Info("service error", "cid", cid, "code", "not_found")
		h.writeError(ctx, w, http.StatusNotFound, "No API key found")
	case errors.Is(err, domain.ErrRateLimited):
		slog.Info("service error", "cid", cid, "code", "rate_limited")
		h.writeError(ctx, w, http.StatusTooManyRequests, "Too many requests. Try again later.")
	case errors.Is(err, app.ErrDecrypt):
		// Log class only; the raw error chain carries crypto detail.
		slog.Error("service error", "cid", cid, "code", "decrypt_failed")
		h.writeError(ctx, w, http.StatusInternalServerError, "Internal server error")
	default:
		slog.Error("unhandled service error", "cid", cid, "code", "unhandled")
		h.writeError(ctx, w, http.StatusInternalServerError, "Internal server error")
	}
}
