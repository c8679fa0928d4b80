package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verifierFixture struct {
	key      testKey
	jwks     *jwksServer
	userinfo *httptest.Server
	verifier *Verifier

	userinfoStatus atomic.Int32
	gotAuth        atomic.Value
}

func newVerifierFixture(t *testing.T, opts ...VerifierOption) *verifierFixture {
	t.Helper()
	f := &verifierFixture{
		key: newTestKey(t, "kc-key"),
	}
	f.userinfoStatus.Store(http.StatusOK)
	f.jwks = newJWKSServer(t, f.key.jwk())
	f.userinfo = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.gotAuth.Store(r.Header.Get("Authorization"))
		status := int(f.userinfoStatus.Load())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"sub":                "user-123",
				"preferred_username": "alice",
				"email":              "alice@example.org",
			})
			return
		}
		_, _ = w.Write([]byte(`{"error":"temporarily_unavailable"}`))
	}))
	t.Cleanup(f.userinfo.Close)

	f.verifier = NewVerifier(NewKeyResolver(f.jwks.URL), f.userinfo.URL, opts...)
	return f
}

func baseClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   "https://idp.example.org/realms/matrix",
		"sub":   "user-123",
		"azp":   "mcp-client",
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
		"scope": "mcp:tools profile",
	}
}

func TestVerifier_Verify_HappyPath(t *testing.T) {
	f := newVerifierFixture(t)
	claims := baseClaims()
	token := f.key.sign(t, claims)

	identity, err := f.verifier.Verify(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, token, identity.Token.Value())
	assert.Equal(t, "mcp-client", identity.ClientID)
	assert.Equal(t, "user-123", identity.Subject)
	assert.Equal(t, []string{"mcp:tools", "profile"}, identity.Scopes)
	require.NotNil(t, identity.ExpiresAt)
	assert.Equal(t, claims["exp"], identity.ExpiresAt.Unix())
	assert.Equal(t, "alice", identity.UserinfoString("preferred_username"))
	assert.Equal(t, "Bearer "+token, f.gotAuth.Load())
	assert.True(t, identity.HasScopes("mcp:tools"))
	assert.False(t, identity.HasScopes("mcp:tools", "admin"))
}

func TestVerifier_Verify_ClaimExtraction(t *testing.T) {
	f := newVerifierFixture(t)

	t.Run("client_id used when azp is absent", func(t *testing.T) {
		claims := baseClaims()
		delete(claims, "azp")
		claims["client_id"] = "fallback-client"

		identity, err := f.verifier.Verify(context.Background(), f.key.sign(t, claims))
		require.NoError(t, err)
		assert.Equal(t, "fallback-client", identity.ClientID)
	})

	t.Run("missing scope yields empty scopes", func(t *testing.T) {
		claims := baseClaims()
		delete(claims, "scope")

		identity, err := f.verifier.Verify(context.Background(), f.key.sign(t, claims))
		require.NoError(t, err)
		assert.NotNil(t, identity.Scopes)
		assert.Empty(t, identity.Scopes)
	})

	t.Run("non-string scope yields empty scopes", func(t *testing.T) {
		claims := baseClaims()
		claims["scope"] = []string{"a", "b"}

		identity, err := f.verifier.Verify(context.Background(), f.key.sign(t, claims))
		require.NoError(t, err)
		assert.Empty(t, identity.Scopes)
	})

	t.Run("missing exp yields nil ExpiresAt", func(t *testing.T) {
		claims := baseClaims()
		delete(claims, "exp")

		identity, err := f.verifier.Verify(context.Background(), f.key.sign(t, claims))
		require.NoError(t, err)
		assert.Nil(t, identity.ExpiresAt)
		assert.False(t, identity.Expired(time.Now()))
	})
}

func TestVerifier_Verify_Failures(t *testing.T) {
	f := newVerifierFixture(t)

	t.Run("malformed token", func(t *testing.T) {
		_, err := f.verifier.Verify(context.Background(), "not-a-jwt")
		assert.True(t, errors.Is(err, ErrMalformedToken))
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := f.verifier.Verify(context.Background(), "  ")
		assert.True(t, errors.Is(err, ErrMalformedToken))
	})

	t.Run("signature from a different key with the same kid", func(t *testing.T) {
		impostor := newTestKey(t, f.key.kid)
		identity, err := f.verifier.Verify(context.Background(), impostor.sign(t, baseClaims()))
		assert.Nil(t, identity)
		assert.True(t, errors.Is(err, ErrInvalidSignature))
	})

	t.Run("tampered payload", func(t *testing.T) {
		token := f.key.sign(t, baseClaims())
		parts := strings.Split(token, ".")
		other := f.key.sign(t, jwt.MapClaims{"sub": "mallory", "exp": time.Now().Add(time.Hour).Unix()})
		parts[1] = strings.Split(other, ".")[1]

		_, err := f.verifier.Verify(context.Background(), strings.Join(parts, "."))
		assert.True(t, errors.Is(err, ErrInvalidSignature))
	})

	t.Run("symmetric algorithm rejected", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, baseClaims())
		tok.Header["kid"] = f.key.kid
		s, err := tok.SignedString([]byte("shared-secret"))
		require.NoError(t, err)

		_, err = f.verifier.Verify(context.Background(), s)
		assert.True(t, errors.Is(err, ErrInvalidSignature))
	})

	t.Run("expired beyond leeway", func(t *testing.T) {
		claims := baseClaims()
		claims["exp"] = time.Now().Add(-2 * DefaultLeeway).Unix()

		_, err := f.verifier.Verify(context.Background(), f.key.sign(t, claims))
		assert.True(t, errors.Is(err, ErrInvalidClaims))
	})

	t.Run("expired within leeway is accepted", func(t *testing.T) {
		claims := baseClaims()
		claims["exp"] = time.Now().Add(-10 * time.Second).Unix()

		_, err := f.verifier.Verify(context.Background(), f.key.sign(t, claims))
		assert.NoError(t, err)
	})

	t.Run("unknown kid", func(t *testing.T) {
		stranger := newTestKey(t, "unknown-kid")
		_, err := f.verifier.Verify(context.Background(), stranger.sign(t, baseClaims()))
		assert.True(t, errors.Is(err, ErrKeyNotFound))
	})
}

func TestVerifier_Verify_Issuer(t *testing.T) {
	f := newVerifierFixture(t, WithIssuer("https://idp.example.org/realms/matrix"))

	_, err := f.verifier.Verify(context.Background(), f.key.sign(t, baseClaims()))
	require.NoError(t, err)

	claims := baseClaims()
	claims["iss"] = "https://evil.example.org"
	_, err = f.verifier.Verify(context.Background(), f.key.sign(t, claims))
	assert.True(t, errors.Is(err, ErrInvalidClaims))
}

func TestVerifier_Verify_KeyFetchFailure(t *testing.T) {
	f := newVerifierFixture(t)
	f.jwks.setStatus(http.StatusServiceUnavailable)

	_, err := f.verifier.Verify(context.Background(), f.key.sign(t, baseClaims()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyFetch))
	assert.True(t, IsRetryable(err))
}

func TestVerifier_Verify_UserinfoDegradation(t *testing.T) {
	t.Run("503 keeps the identity and records a diagnostic", func(t *testing.T) {
		f := newVerifierFixture(t)
		f.userinfoStatus.Store(http.StatusServiceUnavailable)

		identity, err := f.verifier.Verify(context.Background(), f.key.sign(t, baseClaims()))
		require.NoError(t, err)
		assert.Equal(t, "Failed to fetch userinfo: 503", identity.Extra["error"])
		assert.Contains(t, identity.Extra["details"], "temporarily_unavailable")
		assert.Equal(t, []string{"mcp:tools", "profile"}, identity.Scopes)
	})

	t.Run("unreachable endpoint records an exception", func(t *testing.T) {
		f := newVerifierFixture(t)
		f.userinfo.Close()

		identity, err := f.verifier.Verify(context.Background(), f.key.sign(t, baseClaims()))
		require.NoError(t, err)
		assert.Equal(t, "Exception fetching userinfo", identity.Extra["error"])
		assert.NotEmpty(t, identity.Extra["details"])
	})

	t.Run("no userinfo URL skips enrichment", func(t *testing.T) {
		f := newVerifierFixture(t)
		verifier := NewVerifier(NewKeyResolver(f.jwks.URL), "")

		identity, err := verifier.Verify(context.Background(), f.key.sign(t, baseClaims()))
		require.NoError(t, err)
		assert.Empty(t, identity.Extra)
	})
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	identity := &VerifiedIdentity{Subject: "user-123"}
	got, ok := IdentityFromContext(ContextWithIdentity(context.Background(), identity))
	require.True(t, ok)
	assert.Same(t, identity, got)
}
