// Package app bootstraps and runs the matrix-mcp server.
//
// # Lifecycle
//
// NewApplication loads the configuration (see package config), switches
// logging to the configured level and format, and wires every component
// through InitializeServices. Run then binds the listener and serves until
// the context is cancelled or SIGINT/SIGTERM arrives.
//
// # Wiring
//
// InitializeServices assembles:
//
//   - the identity provider endpoints, from explicit settings, optional
//     OpenID Connect discovery, and Keycloak path conventions
//   - a JWKS key resolver and the bearer token verifier
//   - the RFC 8693 token exchanger when token exchange is enabled
//   - the session cache and the connection bootstrapper behind a
//     matrix.Provider
//   - the MCP server with all Matrix tools, served over streamable HTTP
//
// # Shutdown
//
// Cancelling the run context drains HTTP connections first and then
// closes every cached Matrix session. Under systemd (Type=notify) the
// process reports READY=1 once listening and STOPPING=1 when shutdown
// begins.
package app
