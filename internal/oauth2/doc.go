// Package oauth2 manages the per-user OAuth tokens used to call the signing
// service.
//
// # Token resolution
//
// Manager.GetValidAccessToken answers from the fastest tier that has a live
// token:
//
//  1. the caller's session cache (SessionCache),
//  2. the process cache (TokenCache: memory, Redis or no-op),
//  3. the persisted TokenRecord while its expiry is in the future,
//  4. a refresh-token grant.
//
// The refresh runs under a per-user lock from the locks package. Inside the
// lock the persisted record is read again, because most providers invalidate
// a refresh token once it is used and a second refresh would strand the
// loser. A successful refresh replaces the whole TokenRecord; the previous
// refresh token is kept when the provider does not issue a new one, and the
// account id and REST base are carried over.
//
// Any failure (missing record, undecryptable secret, rejected refresh)
// yields ("", false). Callers treat that uniformly as "not connected".
//
// # Provider
//
// Provider wraps golang.org/x/oauth2 for the authorization-code flow with
// PKCE (S256), the refresh grant and the userinfo lookup that discovers the
// remote account and its API base URL. Token calls carry an Origin header
// and run behind a circuit breaker.
//
// Secrets are sealed with the crypto.Codec before they reach storage or
// Redis and never appear in logs.
package oauth2
