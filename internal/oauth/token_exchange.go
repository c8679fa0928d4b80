package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elnormous/contenttype"

	"matrixmcp/pkg/logging"
	pkgstrings "matrixmcp/pkg/strings"
)

const (
	// DefaultHTTPTimeout is the default timeout for token exchange requests.
	DefaultHTTPTimeout = 30 * time.Second

	// GrantTypeTokenExchange is the RFC 8693 grant type.
	GrantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"

	// TokenTypeAccessToken is used for both the subject and the requested token type.
	TokenTypeAccessToken = "urn:ietf:params:oauth:token-type:access_token"

	// tokenEndpointPath is appended to the IdP base URL when no explicit
	// token endpoint is configured.
	tokenEndpointPath = "/protocol/openid-connect/token"

	// maxResponseBytes bounds how much of a token endpoint response is read.
	maxResponseBytes = 1 << 20
)

var (
	// ErrExchangeRequestFailed indicates that the token endpoint answered with
	// a non-success status. The concrete error is an *ExchangeError.
	ErrExchangeRequestFailed = errors.New("token exchange request failed")

	// ErrExchangeResponseMalformed indicates that the token endpoint response
	// could not be parsed as JSON.
	ErrExchangeResponseMalformed = errors.New("token exchange response is not valid JSON")

	// ErrAccessTokenMissing indicates that the token endpoint response did not
	// carry a non-empty access_token.
	ErrAccessTokenMissing = errors.New("access token missing from token exchange response")
)

// ExchangeError carries the diagnostics of a rejected exchange. Body is
// truncated and may still contain provider details, so it is only logged at
// debug level.
type ExchangeError struct {
	StatusCode int
	Body       string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s: status %d", ErrExchangeRequestFailed, e.StatusCode)
}

// Unwrap lets errors.Is match ErrExchangeRequestFailed.
func (e *ExchangeError) Unwrap() error {
	return ErrExchangeRequestFailed
}

// ExchangeRequest contains the parameters for one token exchange.
type ExchangeRequest struct {
	// IdPURL is the identity provider base URL (for Keycloak the realm URL).
	IdPURL string

	// TokenEndpoint overrides the endpoint derived from IdPURL, for example
	// when it was learned through OIDC discovery.
	TokenEndpoint string

	// ClientID and ClientSecret identify this server at the IdP.
	ClientID     string
	ClientSecret RedactedToken

	// Audience is the client the exchanged token is issued for.
	Audience string

	// SubjectToken is the caller's access token.
	SubjectToken RedactedToken
}

// Endpoint returns the token endpoint the request is sent to.
func (r *ExchangeRequest) Endpoint() string {
	if r.TokenEndpoint != "" {
		return r.TokenEndpoint
	}
	return strings.TrimSuffix(r.IdPURL, "/") + tokenEndpointPath
}

// ExchangeResult contains the outcome of a successful exchange.
type ExchangeResult struct {
	AccessToken     RedactedToken
	IssuedTokenType string
	TokenType       string
	ExpiresIn       int
}

// tokenResponse is the JSON body returned by the token endpoint.
type tokenResponse struct {
	AccessToken     string `json:"access_token"`
	IssuedTokenType string `json:"issued_token_type"`
	TokenType       string `json:"token_type"`
	ExpiresIn       int    `json:"expires_in"`
}

// TokenExchanger performs RFC 8693 OAuth 2.0 Token Exchange, turning the
// caller's IdP access token into a token scoped for the homeserver.
//
// Every exchange is a single request. Nothing is retried or cached here;
// callers decide whether to try again.
//
// Thread-safe: Yes.
type TokenExchanger struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// ExchangerOption configures a TokenExchanger.
type ExchangerOption func(*TokenExchanger)

// WithHTTPClient sets a custom HTTP client, for example one trusting a
// private CA.
func WithHTTPClient(httpClient *http.Client) ExchangerOption {
	return func(e *TokenExchanger) {
		e.httpClient = httpClient
	}
}

// WithLogger sets a custom logger for debug diagnostics.
func WithLogger(logger *slog.Logger) ExchangerOption {
	return func(e *TokenExchanger) {
		e.logger = logger
	}
}

// NewTokenExchanger creates a new TokenExchanger.
func NewTokenExchanger(opts ...ExchangerOption) *TokenExchanger {
	e := &TokenExchanger{
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		logger:     logging.Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Exchange swaps req.SubjectToken for a homeserver-scoped access token.
//
// Client credentials are sent both as HTTP Basic authentication and as form
// parameters, which Keycloak's token exchange requires.
func (e *TokenExchanger) Exchange(ctx context.Context, req *ExchangeRequest) (*ExchangeResult, error) {
	if err := validateExchangeRequest(req); err != nil {
		return nil, err
	}

	endpoint := req.Endpoint()

	form := url.Values{}
	form.Set("grant_type", GrantTypeTokenExchange)
	form.Set("client_id", req.ClientID)
	form.Set("client_secret", req.ClientSecret.Value())
	form.Set("subject_token", req.SubjectToken.Value())
	form.Set("subject_token_type", TokenTypeAccessToken)
	form.Set("requested_token_type", TokenTypeAccessToken)
	form.Set("audience", req.Audience)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token exchange request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(req.ClientID, req.ClientSecret.Value())

	logging.Debug("TokenExchange", "Exchanging token at %s for audience %s", endpoint, req.Audience)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		e.audit("error", endpoint, "transport")
		return nil, fmt.Errorf("token exchange request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		e.audit("error", endpoint, "read")
		return nil, fmt.Errorf("failed to read token exchange response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		truncated := pkgstrings.TruncateLine(string(body), pkgstrings.DiagnosticBodyMaxLen)
		e.logger.Debug("Token exchange rejected",
			"status", resp.StatusCode,
			"body", truncated)
		e.audit("failure", endpoint, fmt.Sprintf("status=%d", resp.StatusCode))
		return nil, &ExchangeError{StatusCode: resp.StatusCode, Body: truncated}
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !IsJSONContentType(ct) {
		e.audit("failure", endpoint, "content_type")
		return nil, fmt.Errorf("%w: unexpected content type %q", ErrExchangeResponseMalformed, ct)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		e.audit("failure", endpoint, "malformed")
		return nil, fmt.Errorf("%w: %v", ErrExchangeResponseMalformed, err)
	}

	if tr.AccessToken == "" {
		e.audit("failure", endpoint, "access_token_missing")
		return nil, ErrAccessTokenMissing
	}

	e.audit("success", endpoint, "")

	return &ExchangeResult{
		AccessToken:     NewRedactedToken(tr.AccessToken),
		IssuedTokenType: tr.IssuedTokenType,
		TokenType:       tr.TokenType,
		ExpiresIn:       tr.ExpiresIn,
	}, nil
}

func (e *TokenExchanger) audit(outcome, target, details string) {
	logging.Audit(logging.AuditEvent{
		Action:  "token_exchange",
		Outcome: outcome,
		Target:  target,
		Details: details,
	})
}

// validateExchangeRequest validates that all required fields are present.
func validateExchangeRequest(req *ExchangeRequest) error {
	if req == nil {
		return fmt.Errorf("exchange request is required")
	}
	if req.IdPURL == "" && req.TokenEndpoint == "" {
		return fmt.Errorf("identity provider URL is required")
	}
	if req.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}
	if req.ClientSecret.IsEmpty() {
		return fmt.Errorf("client secret is required")
	}
	if req.Audience == "" {
		return fmt.Errorf("audience is required")
	}
	if req.SubjectToken.IsEmpty() {
		return fmt.Errorf("subject token is required")
	}
	return nil
}

// IsJSONContentType reports whether a Content-Type header names JSON,
// including structured suffixes such as application/jwk-set+json.
func IsJSONContentType(header string) bool {
	mt := contenttype.NewMediaType(header)
	if mt.Type != "application" {
		return false
	}
	return mt.Subtype == "json" || strings.HasSuffix(mt.Subtype, "+json")
}
