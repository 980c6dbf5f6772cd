package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

// vote is an Authenticator that always returns the same result.
type vote AuthResult

func (v vote) Authenticate(context.Context, *http.Request) AuthResult { return AuthResult(v) }

var (
	yesAlice = vote{Decision: Yes, Identity: &Identity{Subject: "alice"}}
	yesBob   = vote{Decision: Yes, Identity: &Identity{Subject: "bob"}}
	no       = vote{Decision: No, Err: ErrUnauthenticated}
	abstain  = vote{Decision: Abstain}
)

func TestAuthChain(t *testing.T) {
	tests := []struct {
		name        string
		authns      []Authenticator
		fallback    AuthDecision
		wantDec     AuthDecision
		wantSubject string
	}{
		{"first yes wins", []Authenticator{yesAlice, no}, No, Yes, "alice"},
		{"first no wins", []Authenticator{no, yesBob}, No, No, ""},
		{"abstain then yes", []Authenticator{abstain, yesBob}, No, Yes, "bob"},
		{"all abstain, reject", []Authenticator{abstain, abstain}, No, No, ""},
		{"all abstain, admit anonymous", []Authenticator{abstain}, Yes, Yes, "anonymous"},
		{"empty chain rejects", nil, No, No, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := &AuthChain{Authenticators: tt.authns, DefaultDecision: tt.fallback}
			got := chain.Authenticate(context.Background(), httptest.NewRequest("POST", "/v1/talk", nil))

			if got.Decision != tt.wantDec {
				t.Fatalf("decision = %d, want %d", got.Decision, tt.wantDec)
			}
			if tt.wantDec == No {
				if got.Err == nil || got.Identity != nil {
					t.Errorf("rejection = %+v", got)
				}
				return
			}
			if got.Identity.Subject != tt.wantSubject {
				t.Errorf("subject = %q, want %q", got.Identity.Subject, tt.wantSubject)
			}
		})
	}
}

func TestAnonymousScopes(t *testing.T) {
	scopes := []string{ScopeSuperuser}
	chain := &AuthChain{DefaultDecision: Yes, AnonymousScopes: scopes}

	id := chain.Authenticate(context.Background(), httptest.NewRequest("GET", "/v1/apikeys", nil)).Identity
	if !id.HasScope(ScopeSuperuser) || id.ServiceTier != "default" {
		t.Errorf("anonymous identity = %+v", id)
	}

	id.Scopes[0] = "tampered"
	if scopes[0] != ScopeSuperuser {
		t.Error("anonymous identity must not share the chain's scope slice")
	}
}

func TestIdentityHasScope(t *testing.T) {
	id := &Identity{Subject: "alice", Scopes: []string{"talk", ScopeSuperuser}}
	if !id.HasScope(ScopeSuperuser) || id.HasScope("admin") {
		t.Errorf("scopes %v misreported", id.Scopes)
	}
	var none *Identity
	if none.HasScope(ScopeSuperuser) {
		t.Error("nil identity has no scopes")
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	if IdentityFromContext(ctx) != nil {
		t.Error("empty context should carry no identity")
	}
	ctx = SetIdentity(ctx, &Identity{Subject: "alice"})
	if got := IdentityFromContext(ctx); got == nil || got.Subject != "alice" {
		t.Errorf("identity = %+v", got)
	}
}
