// Package auth verifies the bearer tokens presented to matrix-mcp.
//
// KeyResolver fetches the identity provider's JSON Web Key Set and caches it,
// refetching once when a token names an unknown key. Verifier checks the
// token signature and claims with those keys, extracts the client identifier
// and scopes, and enriches the result with the caller's userinfo profile.
//
// A failing userinfo call never fails verification; the returned
// VerifiedIdentity carries an "error"/"details" pair in Extra instead.
//
// Errors are classified as ErrMalformedToken, ErrInvalidSignature,
// ErrInvalidClaims, ErrKeyNotFound and ErrKeyFetch. IsRetryable reports the
// transient ones.
//
// Discover reads OpenID Connect discovery metadata, and KeycloakEndpoints
// derives the standard Keycloak endpoints from a realm URL.
package auth
