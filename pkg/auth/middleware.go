package auth

import (
	"log/slog"
	"net/http"

	"github.com/kikaiken/kikaiken/pkg/api"
	"github.com/kikaiken/kikaiken/pkg/debug"
	"github.com/kikaiken/kikaiken/pkg/observability"
	"github.com/kikaiken/kikaiken/pkg/transport"
)

// DefaultBypassEndpoints are the health and scrape paths, served without
// credentials.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}

// gate holds what Middleware needs per request.
type gate struct {
	chain   *AuthChain
	limiter RateLimiter
	open    map[string]struct{}
}

// admit resolves the caller of r. A non-nil error is written to the client
// as is.
func (g *gate) admit(r *http.Request) (*Identity, *api.APIError) {
	ctx := r.Context()
	res := g.chain.Authenticate(ctx, r)

	switch {
	case res.Decision != Yes, res.Identity == nil:
		slog.Warn("rejected unauthenticated request",
			"path", r.URL.Path, "remote_addr", r.RemoteAddr, "error", res.Err)
		return nil, api.NewUnauthorizedError("authentication required")
	case res.Identity.Subject == "":
		slog.Error("authenticator admitted a caller without subject", "path", r.URL.Path)
		return nil, api.NewServerError("internal authentication error")
	}
	id := res.Identity
	debug.Log("auth", "caller admitted", "subject", id.Subject, "tier", id.ServiceTier, "path", r.URL.Path)

	if g.limiter == nil {
		return id, nil
	}
	if err := g.limiter.Allow(ctx, id); err != nil {
		tier := tierOf(id)
		slog.Warn("request over rate limit", "subject", id.Subject, "tier", tier)
		observability.RateLimitRejectedTotal.WithLabelValues(tier).Inc()
		return nil, api.NewTooManyRequestsError("rate limit exceeded")
	}
	return id, nil
}

// Middleware authenticates every request outside bypass with chain and, when
// limiter is set, applies the caller's rate limit. The admitted Identity is
// stored in the request context.
func Middleware(chain *AuthChain, limiter RateLimiter, bypass []string) func(http.Handler) http.Handler {
	g := &gate{chain: chain, limiter: limiter, open: make(map[string]struct{}, len(bypass))}
	for _, p := range bypass {
		g.open[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := g.open[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			id, apiErr := g.admit(r)
			if apiErr != nil {
				transport.WriteAPIError(w, apiErr)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetIdentity(r.Context(), id)))
		})
	}
}

// RequireScope guards administrative routes. It runs behind Middleware:
// callers without identity get 401, callers lacking scope get 403.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromContext(r.Context())
			switch {
			case id == nil:
				transport.WriteAPIError(w, api.NewUnauthorizedError("authentication required"))
			case !id.HasScope(scope):
				slog.Warn("caller lacks scope", "subject", id.Subject, "scope", scope, "path", r.URL.Path)
				transport.WriteAPIError(w, api.NewForbiddenError("scope "+scope+" required"))
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
