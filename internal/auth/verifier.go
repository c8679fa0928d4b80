package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"matrixmcp/internal/oauth"
	"matrixmcp/pkg/logging"
	pkgstrings "matrixmcp/pkg/strings"
)

const (
	// DefaultLeeway is the clock skew tolerated for exp and nbf.
	DefaultLeeway = 60 * time.Second

	// maxUserinfoBytes bounds the size of a userinfo response.
	maxUserinfoBytes = 1 << 20
)

// DefaultAlgorithms are the signing algorithms accepted unless configured
// otherwise. Symmetric algorithms are never accepted.
var DefaultAlgorithms = []string{"RS256", "RS384", "RS512", "PS256", "ES256", "ES384"}

// Verifier validates inbound bearer tokens and enriches them with the
// caller's profile from the userinfo endpoint.
//
// Only signature and claim problems fail a verification. A failing userinfo
// call degrades to a diagnostic entry in VerifiedIdentity.Extra.
//
// Thread-safe: Yes.
type Verifier struct {
	keys        KeySource
	userinfoURL string
	issuer      string
	algorithms  []string
	leeway      time.Duration
	httpClient  *http.Client
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithIssuer enables the iss check.
func WithIssuer(issuer string) VerifierOption {
	return func(v *Verifier) {
		v.issuer = issuer
	}
}

// WithAlgorithms replaces the accepted signing algorithms.
func WithAlgorithms(algs ...string) VerifierOption {
	return func(v *Verifier) {
		v.algorithms = algs
	}
}

// WithLeeway sets the tolerated clock skew.
func WithLeeway(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.leeway = d
	}
}

// WithUserinfoHTTPClient sets the base HTTP client for userinfo calls.
func WithUserinfoHTTPClient(client *http.Client) VerifierOption {
	return func(v *Verifier) {
		v.httpClient = client
	}
}

// NewVerifier creates a Verifier. An empty userinfoURL skips enrichment.
func NewVerifier(keys KeySource, userinfoURL string, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		keys:        keys,
		userinfoURL: userinfoURL,
		algorithms:  DefaultAlgorithms,
		leeway:      DefaultLeeway,
		httpClient:  &http.Client{Timeout: oauth.DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the token's signature and claims and returns the caller's
// identity.
//
// Errors wrap ErrMalformedToken, ErrInvalidSignature, ErrInvalidClaims,
// ErrKeyNotFound or ErrKeyFetch.
func (v *Verifier) Verify(ctx context.Context, token string) (*VerifiedIdentity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformedToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.algorithms),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	parser := jwt.NewParser(opts...)

	var resolveErr error
	parsed, err := parser.Parse(token, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		key, err := v.keys.Resolve(ctx, kid)
		if err != nil {
			resolveErr = err
			return nil, err
		}
		return key, nil
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrMalformedToken)
	}

	identity := &VerifiedIdentity{
		Token:    oauth.NewRedactedToken(token),
		ClientID: firstNonEmpty(stringClaim(claims, "azp"), stringClaim(claims, "client_id")),
		Subject:  stringClaim(claims, "sub"),
		Scopes:   scopesFromClaims(claims),
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		identity.ExpiresAt = &t
	}

	identity.Extra = v.fetchUserinfo(ctx, token)

	return identity, nil
}

// classifyParseError maps jwt parse errors onto the token error taxonomy.
// Signature problems take precedence over claim problems.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidClaims):
		return fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}

// fetchUserinfo presents the token to the userinfo endpoint. Failures are
// reported inside the returned map.
func (v *Verifier) fetchUserinfo(ctx context.Context, token string) map[string]any {
	if v.userinfoURL == "" {
		return map[string]any{}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, v.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	client.Timeout = v.httpClient.Timeout

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userinfoURL, nil)
	if err != nil {
		return userinfoException(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return userinfoException(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserinfoBytes))
	if err != nil {
		return userinfoException(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logging.Warn("TokenVerifier", "Userinfo request failed with status %d", resp.StatusCode)
		return map[string]any{
			"error":   fmt.Sprintf("Failed to fetch userinfo: %d", resp.StatusCode),
			"details": pkgstrings.TruncateLine(string(body), pkgstrings.DiagnosticBodyMaxLen),
		}
	}

	info := map[string]any{}
	if err := json.Unmarshal(body, &info); err != nil {
		return userinfoException(fmt.Errorf("invalid userinfo response: %w", err))
	}
	return info
}

func userinfoException(err error) map[string]any {
	logging.Warn("TokenVerifier", "Exception fetching userinfo: %v", err)
	return map[string]any{
		"error":   "Exception fetching userinfo",
		"details": err.Error(),
	}
}

func stringClaim(claims jwt.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

// scopesFromClaims splits the scope claim. A missing or non-string claim
// yields an empty, non-nil slice.
func scopesFromClaims(claims jwt.MapClaims) []string {
	scope, ok := claims["scope"].(string)
	if !ok {
		return []string{}
	}
	fields := strings.Fields(scope)
	if fields == nil {
		return []string{}
	}
	return fields
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
