package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
)

// AuthDecision is an authenticator's vote on a request.
type AuthDecision int

const (
	// Yes admits the caller and ends the chain.
	Yes AuthDecision = iota
	// No rejects credentials the authenticator understood but could not
	// verify, and ends the chain.
	No
	// Abstain passes the request on: the credentials are not of a kind
	// this authenticator handles.
	Abstain
)

// ScopeSuperuser grants access to key management and bot commands.
const ScopeSuperuser = "superuser"

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// AuthResult is one vote. Identity accompanies Yes and Err accompanies No.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity
	Err      error
}

// Identity describes an admitted caller.
type Identity struct {
	Subject     string // never empty once admitted
	ServiceTier string // rate limit bucket
	Scopes      []string
	Metadata    map[string]string
}

// HasScope is nil-safe.
func (id *Identity) HasScope(scope string) bool {
	return id != nil && slices.Contains(id.Scopes, scope)
}

// Anonymous is the caller admitted when every authenticator abstains and the
// chain defaults to Yes.
func Anonymous(scopes ...string) *Identity {
	return &Identity{
		Subject:     "anonymous",
		ServiceTier: "default",
		Scopes:      slices.Clone(scopes),
	}
}

type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

// AuthChain asks its authenticators in order. The first vote other than
// Abstain decides; if all abstain, DefaultDecision does.
type AuthChain struct {
	Authenticators []Authenticator

	// DefaultDecision Yes admits an Anonymous caller. Only development
	// setups should use it.
	DefaultDecision AuthDecision
	AnonymousScopes []string
}

func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for _, a := range c.Authenticators {
		if res := a.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}
	if c.DefaultDecision != Yes {
		return AuthResult{Decision: No, Err: ErrUnauthenticated}
	}
	return AuthResult{Decision: Yes, Identity: Anonymous(c.AnonymousScopes...)}
}

type identityKey struct{}

// SetIdentity returns ctx carrying id.
func SetIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller stored by Middleware, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
