package main

import (
	"fmt"
	"net/http"

	"github.com/kikaiken/kikaiken/pkg/auth"
	"github.com/kikaiken/kikaiken/pkg/auth/apikey"
	"github.com/kikaiken/kikaiken/pkg/auth/jwt"
	"github.com/kikaiken/kikaiken/pkg/auth/noop"
	"github.com/kikaiken/kikaiken/pkg/config"
)

// buildAuth returns the authentication middleware for all API routes and
// the guard for administrative routes.
func buildAuth(cfg config.AuthConfig) (authn, admin func(http.Handler) http.Handler, err error) {
	chain := &auth.AuthChain{DefaultDecision: auth.No}

	switch cfg.Type {
	case "none", "":
		// Without authentication every caller may administer keys.
		chain.Authenticators = []auth.Authenticator{&noop.Authenticator{Scopes: []string{auth.ScopeSuperuser}}}
	case "apikey":
		chain.Authenticators = []auth.Authenticator{apikey.FromConfig(cfg.APIKeys)}
	case "jwt":
		chain.Authenticators = []auth.Authenticator{jwt.New(jwt.FromConfig(cfg.JWT))}
	default:
		return nil, nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}

	var limiter auth.RateLimiter
	if cfg.RateLimit.DefaultRPM > 0 || len(cfg.RateLimit.Tiers) > 0 {
		limiter = auth.NewInProcessLimiter(cfg.RateLimit.Tiers, cfg.RateLimit.DefaultRPM)
	}

	return auth.Middleware(chain, limiter, auth.DefaultBypassEndpoints), auth.RequireScope(auth.ScopeSuperuser), nil
}
