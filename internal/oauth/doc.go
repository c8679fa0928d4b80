// Package oauth implements the outbound OAuth pieces of matrix-mcp.
//
// # Token Exchange
//
// When the server runs with OAuth and token exchange enabled, the bearer token
// a client presents is an identity provider token, not a homeserver token.
// TokenExchanger converts it with an RFC 8693 token exchange request:
//
//	exchanger := oauth.NewTokenExchanger(oauth.WithHTTPClient(client))
//	result, err := exchanger.Exchange(ctx, &oauth.ExchangeRequest{
//	    IdPURL:       "https://idp.example.org/realms/matrix",
//	    ClientID:     "matrix-mcp",
//	    ClientSecret: oauth.NewRedactedToken(secret),
//	    Audience:     "synapse",
//	    SubjectToken: oauth.NewRedactedToken(bearer),
//	})
//
// Failures are reported through ErrExchangeRequestFailed (as *ExchangeError
// with the status code), ErrExchangeResponseMalformed and
// ErrAccessTokenMissing. A single attempt is made.
//
// # Security
//
// Client secrets, subject tokens and exchanged tokens travel as RedactedToken
// so that fmt, slog and encoding/json print "[REDACTED]". Response bodies of
// failed exchanges are truncated and only logged at debug level. Outcomes are
// recorded as audit events.
//
// # Bearer Challenges
//
// WWWAuthenticateParams renders the RFC 6750 challenge returned with 401 and
// 403 responses, including the RFC 9728 resource_metadata parameter that lets
// MCP clients discover the authorization server.
package oauth
