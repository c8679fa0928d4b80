// Package server exposes the Matrix tools over streamable HTTP.
//
// # Endpoints
//
//   - /mcp - MCP endpoint (requires a Bearer token when OAuth is enabled)
//   - /health - liveness probe, never authenticated
//   - /.well-known/oauth-protected-resource - Protected Resource Metadata (RFC 9728)
//   - /.well-known/oauth-authorization-server - Authorization Server Metadata (RFC 8414)
//
// The metadata endpoints exist only when OAuth is enabled. They describe
// the external identity provider; this process never issues tokens.
//
// # Request context
//
// Every MCP request carries the caller's Matrix credentials: the
// matrix_user_id, matrix_homeserver_url and matrix_access_token headers plus
// the verified bearer token. Tool handlers read them with
// matrix.RequestCredentialsFromContext.
//
// # Authentication failures
//
// A request without credentials gets 401 and a bare Bearer challenge. A
// malformed Authorization header gets 400 invalid_request, a token that
// fails verification 401 invalid_token, and a token without the required
// scopes 403 insufficient_scope. When the signing keys cannot be fetched
// the server answers 503 so clients retry instead of discarding the token.
package server
