// Package config loads the matrix-mcp configuration.
//
// Configuration is resolved in three layers, later layers winning:
//
//  1. Built-in defaults (GetDefaultConfig)
//  2. config.yaml in the configuration directory (~/.config/matrix-mcp by
//     default, or the --config-path flag)
//  3. Environment variables
//
// A missing config.yaml is not an error. Unknown YAML fields are.
//
// # Environment Variables
//
//	HOST, PORT                     listener address
//	ENABLE_HTTPS                   serve TLS with SSL_KEY_PATH and SSL_CERT_PATH
//	CORS_ALLOWED_ORIGINS           comma separated origins, empty allows all
//	MCP_SERVER_URL                 public URL of the MCP endpoint
//	MATRIX_HOMESERVER_URL          fallback homeserver
//	MATRIX_CLIENT_ID               token exchange client
//	MATRIX_CLIENT_SECRET           token exchange client secret
//	MATRIX_AUDIENCE                token exchange audience (default: client id)
//	ENABLE_OAUTH                   require bearer tokens on /mcp
//	ENABLE_TOKEN_EXCHANGE          exchange bearer tokens for Matrix tokens
//	IDP_ISSUER_URL                 identity provider issuer
//	IDP_*_URL                      explicit endpoint overrides
//	IDP_DISCOVERY                  read endpoints from the discovery document
//	IDP_CA_FILE                    extra CA bundle for the identity provider
//	OAUTH_SCOPES_SUPPORTED         comma separated scopes, all required
//	SESSION_TTL, SESSION_SWEEP_INTERVAL
//	SYNC_TIMEOUT, HTTP_TIMEOUT
//	LOG_LEVEL, LOG_FORMAT
//
// Durations use Go syntax, for example "15m".
//
// # Errors
//
// File and environment problems are reported as *ConfigurationError.
// Semantically invalid settings are reported together as ValidationErrors.
package config
