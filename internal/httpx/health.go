package httpx

import "net/http"

// statusBody is the JSON shape shared by the liveness and readiness
// endpoints, matching the service's JSON-everywhere response style.
type statusBody struct {
	Status string `json:"status"`
}

// handleHealth reports liveness: the process is up and serving.
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

// handleReady reports readiness. With no probe configured the handler is
// optimistic; a failing probe answers 503 so load balancers drain the
// instance before the database becomes a request-path error.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.Readiness != nil {
		if err := h.Readiness(r.Context()); err != nil {
			h.writeError(r.Context(), w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	h.writeJSON(w, http.StatusOK, statusBody{Status: "ready"})
}
