// Package noop provides an authenticator that accepts every request.
package noop

import (
	"context"
	"net/http"

	"github.com/kikaiken/kikaiken/pkg/auth"
)

// Authenticator always votes Yes with the anonymous identity.
type Authenticator struct {
	// Scopes are granted to every caller. Setting auth.ScopeSuperuser
	// opens the administrative routes.
	Scopes []string
}

func (a *Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.AuthResult {
	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: auth.Anonymous(a.Scopes...),
	}
}
