// Package probe contains connectivity-check strategies used to validate a
// stored API key against its upstream provider. The strategy is pluggable
// per service name; the vault service only sees the Prober port.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUpstream indicates the provider could not be reached or answered with
// something other than a clear accept/reject. It carries no key material.
var ErrUpstream = errors.New("upstream check failed")

// Prober reports whether an API key is accepted by its provider.
// A (false, nil) return is a definitive rejection; an error means the
// check itself could not complete.
type Prober interface {
	Check(ctx context.Context, apiKey string) (bool, error)
}

// HTTP probes a provider endpoint with the key as a bearer credential.
// 2xx means the key is valid, 401/403 means rejected, anything else is an
// upstream failure. The caller bounds the request via ctx.
type HTTP struct {
	URL    string
	Client *http.Client
}

// Check performs the authenticated GET against the provider endpoint.
func (p *HTTP) Check(ctx context.Context, apiKey string) (bool, error) {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	resp, err := client.Do(req)
	if err != nil {
		// Includes context deadline exceeded; the service records invalid.
		return false, fmt.Errorf("%w: request failed", ErrUpstream)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
}

// Static is a shape-only check used when no provider endpoint is
// configured: the key must meet a minimum length. It never fails.
type Static struct {
	MinLength int
}

// Check applies the length heuristic.
func (p *Static) Check(_ context.Context, apiKey string) (bool, error) {
	min := p.MinLength
	if min <= 0 {
		min = 10
	}
	return len(apiKey) >= min, nil
}

// Registry selects a Prober per service name, falling back to a default.
type Registry struct {
	probers  map[string]Prober
	fallback Prober
	timeout  time.Duration
}

// NewRegistry builds a registry with the given fallback strategy and
// per-check timeout. A zero timeout defaults to 5 seconds.
func NewRegistry(fallback Prober, timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Registry{probers: make(map[string]Prober), fallback: fallback, timeout: timeout}
}

// Register binds a strategy to a service name, replacing any previous one.
func (r *Registry) Register(service string, p Prober) {
	r.probers[service] = p
}

// Check dispatches to the service's strategy under the registry timeout.
func (r *Registry) Check(ctx context.Context, service, apiKey string) (bool, error) {
	p, ok := r.probers[service]
	if !ok {
		p = r.fallback
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return p.Check(ctx, apiKey)
}
