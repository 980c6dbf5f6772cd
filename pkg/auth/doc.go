// Package auth authenticates callers of the kikaiken HTTP API.
//
// Authenticators form a chain with three-outcome voting: each returns Yes
// (identity found), No (credentials invalid) or Abstain (not its kind of
// credential). The chain's default decision applies when all abstain.
//
// Middleware runs the chain, applies per-tier rate limits and stores the
// Identity in the request context. RequireScope guards administrative
// routes such as API key management.
package auth
