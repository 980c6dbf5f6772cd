// Package apikey authenticates callers by static bearer keys. Keys are kept
// only as SHA-256 hashes and compared in constant time.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"slices"
	"strings"

	"github.com/kikaiken/kikaiken/pkg/auth"
	"github.com/kikaiken/kikaiken/pkg/config"
)

type keyEntry struct {
	hash     [32]byte
	identity auth.Identity
}

// Authenticator validates bearer tokens against a static key store.
type Authenticator struct {
	keys []keyEntry
}

// RawKeyEntry pairs a plaintext key with the identity it grants.
type RawKeyEntry struct {
	Key      string
	Identity auth.Identity
}

// New creates an authenticator. Keys are hashed immediately.
func New(entries []RawKeyEntry) *Authenticator {
	a := &Authenticator{}
	for _, e := range entries {
		a.keys = append(a.keys, keyEntry{
			hash:     sha256.Sum256([]byte(e.Key)),
			identity: e.Identity,
		})
	}
	return a
}

// FromConfig creates an authenticator from the auth.api_keys section.
// Entries without a service tier get the "default" tier.
func FromConfig(keys []config.APIKeyConfig) *Authenticator {
	entries := make([]RawKeyEntry, 0, len(keys))
	for _, k := range keys {
		tier := k.ServiceTier
		if tier == "" {
			tier = "default"
		}
		entries = append(entries, RawKeyEntry{
			Key: k.Key,
			Identity: auth.Identity{
				Subject:     k.Subject,
				ServiceTier: tier,
				Scopes:      slices.Clone(k.Scopes),
			},
		})
	}
	return New(entries)
}

// Authenticate abstains without a Bearer header, votes No for an unknown
// or empty key and Yes otherwise.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if token == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	hash := sha256.Sum256([]byte(token))
	for _, entry := range a.keys {
		if subtle.ConstantTimeCompare(hash[:], entry.hash[:]) == 1 {
			id := entry.identity
			id.Scopes = slices.Clone(entry.identity.Scopes)
			return auth.AuthResult{Decision: auth.Yes, Identity: &id}
		}
	}
	return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
}
