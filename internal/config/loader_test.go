package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envVars = []string{
	"HOST", "PORT", "ENABLE_HTTPS", "SSL_KEY_PATH", "SSL_CERT_PATH", "CORS_ALLOWED_ORIGINS", "MCP_SERVER_URL",
	"MATRIX_HOMESERVER_URL", "MATRIX_CLIENT_ID", "MATRIX_CLIENT_SECRET", "MATRIX_AUDIENCE", "SYNC_TIMEOUT", "HTTP_TIMEOUT",
	"ENABLE_OAUTH", "ENABLE_TOKEN_EXCHANGE", "IDP_ISSUER_URL", "IDP_AUTHORIZATION_URL", "IDP_TOKEN_URL",
	"IDP_REGISTRATION_URL", "IDP_REVOCATION_URL", "IDP_JWKS_URL", "IDP_USERINFO_URL", "IDP_DISCOVERY", "IDP_CA_FILE",
	"OAUTH_SCOPES_SUPPORTED", "SESSION_TTL", "SESSION_SWEEP_INTERVAL", "LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv blanks every variable the loader reads so the host environment
// does not leak into tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envVars {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0o600))
	return dir
}

func TestLoadConfig_DefaultsWhenFileMissing(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), cfg)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 5*time.Minute, cfg.Session.SweepInterval)
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), cfg)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	dir := writeConfig(t, `
server:
  port: 8080
  corsAllowedOrigins:
    - https://app.example.com
matrix:
  homeserverUrl: https://matrix.example.com
  clientId: synapse
  clientSecret: s3cret
session:
  ttl: 30m
logging:
  level: debug
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Equal(t, StringList{"https://app.example.com"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, "https://matrix.example.com", cfg.Matrix.HomeserverURL)
	assert.Equal(t, "s3cret", cfg.Matrix.ClientSecret.Value())
	assert.Equal(t, "synapse", cfg.Matrix.EffectiveAudience())
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.Equal(t, DefaultSessionSweepInterval, cfg.Session.SweepInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := writeConfig(t, "server:\n  port: 8080\n")

	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("MATRIX_CLIENT_ID", "synapse")
	t.Setenv("MATRIX_CLIENT_SECRET", "from-env")
	t.Setenv("MATRIX_AUDIENCE", "matrix")
	t.Setenv("ENABLE_OAUTH", "true")
	t.Setenv("ENABLE_TOKEN_EXCHANGE", "true")
	t.Setenv("IDP_ISSUER_URL", "https://keycloak.example.com/realms/demo")
	t.Setenv("OAUTH_SCOPES_SUPPORTED", "openid,matrix")
	t.Setenv("SESSION_TTL", "1h")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, StringList{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, "from-env", cfg.Matrix.ClientSecret.Value())
	assert.Equal(t, "matrix", cfg.Matrix.EffectiveAudience())
	assert.True(t, cfg.OAuth.Enabled)
	assert.True(t, cfg.OAuth.TokenExchange)
	assert.Equal(t, StringList{"openid", "matrix"}, cfg.OAuth.ScopesSupported)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
}

func TestLoadConfig_ParseError(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		content string
	}{
		{name: "invalid yaml", content: "server: [unterminated"},
		{name: "unknown field", content: "server:\n  listen: 1\n"},
		{name: "bad duration", content: "session:\n  ttl: forever\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, ErrorTypeParse, cfgErr.ErrorType)
			assert.Contains(t, cfgErr.Source, configFileName)
			assert.Contains(t, cfgErr.DetailedError(), "Suggestions")
		})
	}
}

func TestLoadConfig_InvalidEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "not-a-number")

	_, err := LoadConfig(t.TempDir())
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "environment", cfgErr.Source)
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENABLE_TOKEN_EXCHANGE", "true")
	t.Setenv("LOG_FORMAT", "xml")

	_, err := LoadConfig(t.TempDir())
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))

	fields := make([]string, 0, len(verrs))
	for _, v := range verrs {
		fields = append(fields, v.Field)
	}
	assert.ElementsMatch(t, []string{
		"oauth.tokenExchange", "matrix.clientId", "matrix.clientSecret", "logging.format",
	}, fields)
}

func TestGetDefaultConfigPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := GetDefaultConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "matrix-mcp"), path)
}
