package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/kikaiken/kikaiken/pkg/auth"
	"github.com/kikaiken/kikaiken/pkg/config"
)

var testKeyPair *rsa.PrivateKey

func init() {
	var err error
	testKeyPair, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(fmt.Sprintf("generating test RSA key: %v", err))
	}
}

const (
	testKID    = "test-key-1"
	testIssuer = "https://auth.kikaiken.test"
	testAud    = "kikaiken"
)

var testSecret = []byte("kikaiken-shared-secret")

// jwksHandler serves the test public key and counts fetches.
func jwksHandler(fetchCount *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fetchCount != nil {
			fetchCount.Add(1)
		}
		pub := testKeyPair.PublicKey
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{
				{"kty": "EC", "kid": "ignored"},
				{
					"kty": "RSA",
					"kid": testKID,
					"use": "sig",
					"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
					"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
				},
			},
		})
	}
}

func validClaims(extra jwtlib.MapClaims) jwtlib.MapClaims {
	claims := jwtlib.MapClaims{
		"sub": "user-123",
		"iss": testIssuer,
		"aud": testAud,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	for k, v := range extra {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	return claims
}

func rsaToken(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	token.Header["kid"] = testKID
	s, err := token.SignedString(testKeyPair)
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return s
}

func hmacToken(t *testing.T, claims jwtlib.MapClaims, secret []byte) string {
	t.Helper()
	s, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return s
}

func newJWKSAuthenticator(t *testing.T, override func(*Config), fetchCount *atomic.Int32) *Authenticator {
	t.Helper()
	server := httptest.NewServer(jwksHandler(fetchCount))
	t.Cleanup(server.Close)

	cfg := Config{
		Issuer:   testIssuer,
		Audience: testAud,
		JWKSURL:  server.URL + "/.well-known/jwks.json",
	}
	if override != nil {
		override(&cfg)
	}
	return New(cfg)
}

func authenticate(a *Authenticator, header string) auth.AuthResult {
	r := httptest.NewRequest("POST", "/v1/talk", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return a.Authenticate(context.Background(), r)
}

func TestJWT_JWKSValidation(t *testing.T) {
	a := newJWKSAuthenticator(t, nil, nil)

	tests := []struct {
		name  string
		token func(t *testing.T) string
		want  auth.AuthDecision
	}{
		{"valid", func(t *testing.T) string { return rsaToken(t, validClaims(nil)) }, auth.Yes},
		{"expired", func(t *testing.T) string {
			return rsaToken(t, validClaims(jwtlib.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()}))
		}, auth.No},
		{"wrong audience", func(t *testing.T) string { return rsaToken(t, validClaims(jwtlib.MapClaims{"aud": "other"})) }, auth.No},
		{"wrong issuer", func(t *testing.T) string { return rsaToken(t, validClaims(jwtlib.MapClaims{"iss": "https://evil.test"})) }, auth.No},
		{"missing sub", func(t *testing.T) string { return rsaToken(t, validClaims(jwtlib.MapClaims{"sub": nil})) }, auth.No},
		{"garbage", func(*testing.T) string { return "not.a.jwt" }, auth.No},
		{"hmac token rejected", func(t *testing.T) string { return hmacToken(t, validClaims(nil), testSecret) }, auth.No},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := authenticate(a, "Bearer "+tt.token(t))
			if result.Decision != tt.want {
				t.Fatalf("Decision = %d, want %d; err=%v", result.Decision, tt.want, result.Err)
			}
			if tt.want == auth.Yes && result.Identity.Subject != "user-123" {
				t.Errorf("Subject = %q", result.Identity.Subject)
			}
		})
	}
}

func TestJWT_NoBearerAbstains(t *testing.T) {
	a := newJWKSAuthenticator(t, nil, nil)

	for _, header := range []string{"", "Basic dXNlcjpwYXNz"} {
		if got := authenticate(a, header).Decision; got != auth.Abstain {
			t.Errorf("header %q: Decision = %d, want Abstain", header, got)
		}
	}
	if got := authenticate(a, "Bearer ").Decision; got != auth.No {
		t.Errorf("empty bearer: Decision = %d, want No", got)
	}
}

func TestJWT_HMACSecret(t *testing.T) {
	a := New(Config{Secret: testSecret, Issuer: testIssuer})

	result := authenticate(a, "Bearer "+hmacToken(t, validClaims(jwtlib.MapClaims{
		"tier":  "premium",
		"scope": "talk superuser",
	}), testSecret))
	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d; err=%v", result.Decision, result.Err)
	}
	if result.Identity.ServiceTier != "premium" {
		t.Errorf("tier = %q", result.Identity.ServiceTier)
	}
	if !result.Identity.HasScope(auth.ScopeSuperuser) {
		t.Errorf("scopes = %v", result.Identity.Scopes)
	}

	if got := authenticate(a, "Bearer "+hmacToken(t, validClaims(nil), []byte("wrong"))).Decision; got != auth.No {
		t.Errorf("wrong secret: Decision = %d, want No", got)
	}
	if got := authenticate(a, "Bearer "+rsaToken(t, validClaims(nil))).Decision; got != auth.No {
		t.Errorf("RSA token in HMAC mode: Decision = %d, want No", got)
	}
}

func TestJWT_DefaultTier(t *testing.T) {
	a := New(Config{Secret: testSecret})
	result := authenticate(a, "Bearer "+hmacToken(t, validClaims(nil), testSecret))
	if result.Identity == nil || result.Identity.ServiceTier != "default" {
		t.Errorf("identity = %+v", result.Identity)
	}
}

func TestJWT_ScopesExtraction(t *testing.T) {
	a := New(Config{Secret: testSecret})

	tests := []struct {
		name  string
		scope any
		want  []string
	}{
		{"space-separated string", "read write superuser", []string{"read", "write", "superuser"}},
		{"json array", []any{"read", 7, "write"}, []string{"read", "write"}},
		{"blank", "  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := authenticate(a, "Bearer "+hmacToken(t, validClaims(jwtlib.MapClaims{"scope": tt.scope}), testSecret))
			if result.Decision != auth.Yes {
				t.Fatalf("Decision = %d; err=%v", result.Decision, result.Err)
			}
			if !slices.Equal(result.Identity.Scopes, tt.want) {
				t.Errorf("Scopes = %v, want %v", result.Identity.Scopes, tt.want)
			}
		})
	}
}

func TestJWT_CustomClaims(t *testing.T) {
	a := newJWKSAuthenticator(t, func(cfg *Config) {
		cfg.UserClaim = "qq"
		cfg.TierClaim = "plan"
		cfg.ScopesClaim = "permissions"
	}, nil)

	result := authenticate(a, "Bearer "+rsaToken(t, validClaims(jwtlib.MapClaims{
		"qq":          "10001",
		"plan":        "gold",
		"permissions": "read write",
	})))
	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d; err=%v", result.Decision, result.Err)
	}
	if result.Identity.Subject != "10001" || result.Identity.ServiceTier != "gold" {
		t.Errorf("identity = %+v", result.Identity)
	}
	if !slices.Equal(result.Identity.Scopes, []string{"read", "write"}) {
		t.Errorf("Scopes = %v", result.Identity.Scopes)
	}
}

func TestJWT_OptionalIssuerAndAudience(t *testing.T) {
	a := newJWKSAuthenticator(t, func(cfg *Config) {
		cfg.Issuer = ""
		cfg.Audience = ""
	}, nil)

	token := rsaToken(t, validClaims(jwtlib.MapClaims{"iss": "https://any.test", "aud": "any"}))
	if got := authenticate(a, "Bearer "+token).Decision; got != auth.Yes {
		t.Errorf("Decision = %d, want Yes", got)
	}
}

func TestJWT_JWKSCaching(t *testing.T) {
	var fetchCount atomic.Int32
	a := newJWKSAuthenticator(t, nil, &fetchCount)
	token := rsaToken(t, validClaims(nil))

	for i := 0; i < 5; i++ {
		if result := authenticate(a, "Bearer "+token); result.Decision != auth.Yes {
			t.Fatalf("request %d: Decision = %d; err=%v", i, result.Decision, result.Err)
		}
	}
	if n := fetchCount.Load(); n != 1 {
		t.Errorf("JWKS fetch count = %d, want 1", n)
	}
}

func TestJWT_UnknownKidRefetches(t *testing.T) {
	var fetchCount atomic.Int32
	a := newJWKSAuthenticator(t, nil, &fetchCount)

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, validClaims(nil))
	token.Header["kid"] = "rotated-away"
	s, _ := token.SignedString(testKeyPair)

	if got := authenticate(a, "Bearer "+s).Decision; got != auth.No {
		t.Errorf("Decision = %d, want No", got)
	}
	if n := fetchCount.Load(); n != 1 {
		t.Errorf("JWKS fetch count = %d, want 1", n)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.JWTConfig{Secret: "s3cret", Issuer: "iss", Audience: "aud", ScopesClaim: "roles"})
	if string(cfg.Secret) != "s3cret" || cfg.Issuer != "iss" || cfg.Audience != "aud" || cfg.ScopesClaim != "roles" {
		t.Errorf("config = %+v", cfg)
	}

	cfg = FromConfig(config.JWTConfig{JWKSURL: "https://auth.test/jwks"})
	if cfg.Secret != nil || cfg.JWKSURL != "https://auth.test/jwks" {
		t.Errorf("config = %+v", cfg)
	}
}
