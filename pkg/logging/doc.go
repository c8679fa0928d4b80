// Package logging provides the structured logging used across matrix-mcp.
//
// It is a thin layer over Go's slog package that tags every record with a
// subsystem and, for errors, the error text.
//
// # Usage Examples
//
//	import "matrixmcp/pkg/logging"
//
//	// Initialize with Info level logging to stdout
//	logging.InitForCLI(logging.LevelInfo, os.Stdout)
//
//	logging.Info("Bootstrap", "Application starting up")
//	logging.Debug("Config", "Loaded configuration from %s", configPath)
//	logging.Warn("SessionCache", "Error closing session for %s", logging.TruncateIdentity(userID))
//	logging.Error("TokenExchange", err, "Token exchange failed")
//
// JSON output is selected with Init(level, w, logging.FormatJSON).
//
// # Subsystem Organization
//
//   - **Bootstrap**: application initialization and startup
//   - **ConfigLoader**: configuration loading and validation
//   - **KeyResolver** / **TokenVerifier**: inbound token validation
//   - **TokenExchange**: identity provider token exchange
//   - **SessionCache**: cached homeserver sessions
//   - **Matrix**: session bootstrap and homeserver calls
//   - **Tools**: MCP tool handlers
//   - **Services**: component wiring at startup
//   - **Server**: HTTP transport, middleware and metadata endpoints
//   - **MCP**: tool calls as seen by the protocol server
//   - **CLI**: run loop, signals and systemd notifications
//
// # Sensitive Data
//
// Tokens and secrets are never passed to these functions directly. User
// identities go through TruncateIdentity. Security-relevant outcomes use
// Audit, which logs at INFO level with an [AUDIT] prefix for easy filtering
// by log aggregation systems.
//
// # Thread Safety
//
// All functions are safe for concurrent use.
package logging
