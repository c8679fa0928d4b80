package auth

import (
	"context"
	"slices"
	"time"

	"matrixmcp/internal/oauth"
)

// VerifiedIdentity is the result of a successful token verification.
// It is created per call and never cached.
type VerifiedIdentity struct {
	// Token is the verified bearer token.
	Token oauth.RedactedToken

	// ClientID is taken from azp, falling back to client_id.
	ClientID string

	// Subject is the sub claim.
	Subject string

	// Scopes is the space separated scope claim, in order.
	Scopes []string

	// ExpiresAt is derived from exp (seconds since the epoch), nil when absent.
	ExpiresAt *time.Time

	// Extra holds the profile attributes returned by the userinfo endpoint,
	// or an "error"/"details" pair when that call failed.
	Extra map[string]any
}

// HasScopes reports whether every required scope was granted.
func (v *VerifiedIdentity) HasScopes(required ...string) bool {
	for _, scope := range required {
		if !slices.Contains(v.Scopes, scope) {
			return false
		}
	}
	return true
}

// Expired reports whether the token is past its expiry at now. Tokens
// without an expiry never expire here.
func (v *VerifiedIdentity) Expired(now time.Time) bool {
	return v.ExpiresAt != nil && !now.Before(*v.ExpiresAt)
}

// UserinfoString returns a string attribute from Extra.
func (v *VerifiedIdentity) UserinfoString(key string) string {
	s, _ := v.Extra[key].(string)
	return s
}

type identityContextKey struct{}

// ContextWithIdentity returns a context carrying the verified identity.
func ContextWithIdentity(ctx context.Context, identity *VerifiedIdentity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the verified identity stored in ctx, if any.
func IdentityFromContext(ctx context.Context) (*VerifiedIdentity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*VerifiedIdentity)
	return identity, ok && identity != nil
}
