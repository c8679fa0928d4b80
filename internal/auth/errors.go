package auth

import "errors"

var (
	// ErrMalformedToken indicates the token could not be parsed as a JWT.
	ErrMalformedToken = errors.New("malformed token")

	// ErrInvalidSignature indicates the signature does not verify against the
	// resolved key, or the signing algorithm is not accepted.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrInvalidClaims indicates an expired or not yet valid token, or an
	// issuer mismatch.
	ErrInvalidClaims = errors.New("invalid token claims")

	// ErrKeyNotFound indicates the key set has no key for the token's kid,
	// even after a refetch.
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrKeyFetch indicates the key set could not be retrieved or decoded.
	ErrKeyFetch = errors.New("failed to fetch signing keys")
)

// IsRetryable reports whether a verification error is transient.
// Only key set fetch failures qualify; every other token error is final.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrKeyFetch)
}
