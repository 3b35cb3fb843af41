// Package httpx contains the HTTP delivery layer (net/http handlers) for
// the key vault. It maps HTTP requests to the application service while
// enforcing the origin policy, authentication, rate limits, security
// headers, and error translation. Handlers are split across files
// (keys.go, cors.go, health.go, errors.go).
package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/mhakimi/keyvault/internal/app"
	"github.com/mhakimi/keyvault/internal/auth"
)

// ServicePort abstracts the subset of app.Service used by the HTTP layer.
// It is satisfied by *app.Service in production and mocked in tests.
type ServicePort interface {
	Save(ctx context.Context, userID, service, apiKey string) error
	Status(ctx context.Context, userID, service string) (app.Status, error)
	Test(ctx context.Context, userID, service string) (app.TestResult, error)
	Revoke(ctx context.Context, userID, service string) error
}

// Authenticator resolves a bearer credential into a verified identity.
// Satisfied by *auth.Verifier.
type Authenticator interface {
	Authenticate(bearer string) (auth.Identity, error)
}

// Limiter admits or rejects a request under a fixed-window quota keyed by
// an opaque composite key. Satisfied by *sqlite.Limiter.
type Limiter interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (bool, error)
}

// RateLimits carries the per-action quotas within a shared window.
type RateLimits struct {
	Window   time.Duration
	TestMax  int // cap for test-connection requests
	WriteMax int // cap for save/status/revoke requests
}

// Handler wires HTTP endpoints to the application service.
// It is safe for concurrent use. Zero-value is not valid; construct via New.
type Handler struct {
	Service   ServicePort
	Auth      Authenticator
	Limiter   Limiter
	Policy    OriginPolicy
	Limits    RateLimits
	MaxBody   int64                       // cap on save request bodies
	Readiness func(context.Context) error // optional readiness probe
	Observer  Observer                    // optional operation counters
}

// Observer receives operation outcome counts. Satisfied by the metrics
// manager; a nil Observer disables counting.
type Observer interface {
	Inc(name string, delta int64)
}

// New returns a configured Handler.
func New(svc ServicePort, authn Authenticator, limiter Limiter, policy OriginPolicy, limits RateLimits) *Handler {
	if limits.Window <= 0 {
		limits.Window = time.Minute
	}
	if limits.TestMax <= 0 {
		limits.TestMax = 10
	}
	if limits.WriteMax <= 0 {
		limits.WriteMax = 30
	}
	return &Handler{
		Service: svc,
		Auth:    authn,
		Limiter: limiter,
		Policy:  policy,
		Limits:  limits,
		MaxBody: 16 << 10,
	}
}

// Router constructs and returns an http.Handler with all routes mounted,
// correlation and security-header middleware applied.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/keys", h.handleKeys)
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/readyz", h.handleReady)
	return CorrelationIDMiddleware(h.secureHeaders(mux))
}

// secureHeaders middleware adds standard security & cache control headers.
// Responses carry secrets metadata, never cacheable.
func (h *Handler) secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// observe increments a metrics counter when an Observer is configured.
func (h *Handler) observe(name string) {
	if h.Observer != nil {
		h.Observer.Inc(name, 1)
	}
}
