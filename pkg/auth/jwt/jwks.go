package jwt

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kikaiken/kikaiken/pkg/debug"
)

// keySnapshot is one fetched JWKS document, never mutated after publish.
type keySnapshot struct {
	keys    map[string]*rsa.PublicKey
	expires time.Time
}

func (s *keySnapshot) lookup(kid string, now time.Time) (*rsa.PublicKey, bool) {
	if s == nil || now.After(s.expires) {
		return nil, false
	}
	k, ok := s.keys[kid]
	return k, ok
}

// keySource serves RSA verification keys from a JWKS endpoint. Readers go
// through the current snapshot without locking; refresh serializes fetches.
type keySource struct {
	url    string
	ttl    time.Duration
	client *http.Client

	current atomic.Pointer[keySnapshot]
	refresh sync.Mutex
}

func newKeySource(url string, ttl time.Duration, client *http.Client) *keySource {
	return &keySource{url: url, ttl: ttl, client: client}
}

// key returns the key for kid. An unknown kid or an expired snapshot
// triggers one fetch.
func (s *keySource) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if k, ok := s.current.Load().lookup(kid, time.Now()); ok {
		return k, nil
	}

	s.refresh.Lock()
	defer s.refresh.Unlock()

	// A concurrent caller may have fetched while we waited.
	if k, ok := s.current.Load().lookup(kid, time.Now()); ok {
		return k, nil
	}
	snap, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)

	if k, ok := snap.keys[kid]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("no JWKS key with kid %q", kid)
}

func (s *keySource) fetch(ctx context.Context) (*keySnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("jwks request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jwks fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks fetch: status %d", resp.StatusCode)
	}

	var set struct {
		Keys []jsonWebKey `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("jwks decode: %w", err)
	}

	snap := &keySnapshot{
		keys:    make(map[string]*rsa.PublicKey, len(set.Keys)),
		expires: time.Now().Add(s.ttl),
	}
	for _, jk := range set.Keys {
		if !jk.signsRSA() {
			continue
		}
		pub, err := jk.publicKey()
		if err != nil {
			slog.Warn("ignoring malformed JWKS key", "kid", jk.Kid, "error", err)
			continue
		}
		snap.keys[jk.Kid] = pub
	}
	debug.Log("auth", "jwks refreshed", "url", s.url, "keys", len(snap.keys))
	return snap, nil
}

// jsonWebKey holds the RSA members of a JWK; N and E are base64url.
type jsonWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (k jsonWebKey) signsRSA() bool {
	return k.Kty == "RSA" && (k.Use == "" || k.Use == "sig")
}

func (k jsonWebKey) publicKey() (*rsa.PublicKey, error) {
	n, err := decodeBigInt(k.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := decodeBigInt(k.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	if !e.IsInt64() || e.Int64() > 1<<31-1 {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func decodeBigInt(s string) (*big.Int, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}
