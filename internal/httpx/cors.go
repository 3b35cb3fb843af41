package httpx

import (
	"net/http"
	"regexp"
)

// devOriginPattern admits local development hosts on any port.
var devOriginPattern = regexp.MustCompile(`^http://(localhost|127\.0\.0\.1)(:\d+)?$`)

// OriginPolicy is the explicit CORS configuration injected at startup.
// There is no global allow-list; the boundary owns this state.
type OriginPolicy struct {
	// AllowedOrigins are exact origins admitted in addition to the
	// local-development pattern.
	AllowedOrigins []string
	// AllowDev admits http://localhost and http://127.0.0.1 on any port.
	AllowDev bool
}

// Resolve maps a request's declared origin to the value of the
// Access-Control-Allow-Origin header. An empty origin (non-browser caller)
// resolves to "*". A disallowed origin resolves to ("", false).
func (p OriginPolicy) Resolve(origin string) (string, bool) {
	if origin == "" {
		return "*", true
	}
	for _, allowed := range p.AllowedOrigins {
		if origin == allowed {
			return origin, true
		}
	}
	if p.AllowDev && devOriginPattern.MatchString(origin) {
		return origin, true
	}
	return "", false
}

// applyCORS computes and attaches the CORS response headers for the
// request's origin. It reports whether the origin is admitted; rejected
// requests must be answered before any business logic runs.
func (h *Handler) applyCORS(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	hdr := w.Header()
	hdr.Set("Access-Control-Allow-Headers", "authorization, content-type, x-correlation-id")
	hdr.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	hdr.Add("Vary", "Origin")

	allowed, ok := h.Policy.Resolve(origin)
	if !ok {
		return false
	}
	hdr.Set("Access-Control-Allow-Origin", allowed)
	return true
}
