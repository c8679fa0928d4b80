package config

import (
	"strings"
	"time"

	"matrixmcp/internal/oauth"
)

// Config is the top-level configuration of matrix-mcp.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Matrix  MatrixConfig  `yaml:"matrix"`
	OAuth   OAuthConfig   `yaml:"oauth"`
	Session SessionConfig `yaml:"session"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host               string     `yaml:"host,omitempty" env:"HOST"`
	Port               int        `yaml:"port,omitempty" env:"PORT"`
	EnableHTTPS        bool       `yaml:"enableHttps,omitempty" env:"ENABLE_HTTPS"`
	SSLKeyPath         string     `yaml:"sslKeyPath,omitempty" env:"SSL_KEY_PATH"`
	SSLCertPath        string     `yaml:"sslCertPath,omitempty" env:"SSL_CERT_PATH"`
	CORSAllowedOrigins StringList `yaml:"corsAllowedOrigins,omitempty" env:"CORS_ALLOWED_ORIGINS"`
	// PublicURL is the externally visible URL of the MCP endpoint. It is
	// advertised as the protected resource.
	PublicURL string `yaml:"publicUrl,omitempty" env:"MCP_SERVER_URL"`
}

// MatrixConfig controls how sessions reach the homeserver.
type MatrixConfig struct {
	HomeserverURL string              `yaml:"homeserverUrl,omitempty" env:"MATRIX_HOMESERVER_URL"`
	ClientID      string              `yaml:"clientId,omitempty" env:"MATRIX_CLIENT_ID"`
	ClientSecret  oauth.RedactedToken `yaml:"clientSecret,omitempty" env:"MATRIX_CLIENT_SECRET"`
	// Audience is the token exchange target. Defaults to ClientID.
	Audience    string        `yaml:"audience,omitempty" env:"MATRIX_AUDIENCE"`
	SyncTimeout time.Duration `yaml:"syncTimeout,omitempty" env:"SYNC_TIMEOUT"`
	HTTPTimeout time.Duration `yaml:"httpTimeout,omitempty" env:"HTTP_TIMEOUT"`
}

// EffectiveAudience returns Audience, or ClientID when unset.
func (m MatrixConfig) EffectiveAudience() string {
	if m.Audience != "" {
		return m.Audience
	}
	return m.ClientID
}

// OAuthConfig controls bearer authentication and token exchange.
type OAuthConfig struct {
	Enabled       bool `yaml:"enabled,omitempty" env:"ENABLE_OAUTH"`
	TokenExchange bool `yaml:"tokenExchange,omitempty" env:"ENABLE_TOKEN_EXCHANGE"`

	IssuerURL        string `yaml:"issuerUrl,omitempty" env:"IDP_ISSUER_URL"`
	AuthorizationURL string `yaml:"authorizationUrl,omitempty" env:"IDP_AUTHORIZATION_URL"`
	TokenURL         string `yaml:"tokenUrl,omitempty" env:"IDP_TOKEN_URL"`
	RegistrationURL  string `yaml:"registrationUrl,omitempty" env:"IDP_REGISTRATION_URL"`
	RevocationURL    string `yaml:"revocationUrl,omitempty" env:"IDP_REVOCATION_URL"`
	JWKSURL          string `yaml:"jwksUrl,omitempty" env:"IDP_JWKS_URL"`
	UserinfoURL      string `yaml:"userinfoUrl,omitempty" env:"IDP_USERINFO_URL"`

	// Discovery reads missing endpoints from the issuer's discovery document.
	Discovery bool   `yaml:"discovery,omitempty" env:"IDP_DISCOVERY"`
	CAFile    string `yaml:"caFile,omitempty" env:"IDP_CA_FILE"`

	// ScopesSupported are advertised in metadata and required of bearer tokens.
	ScopesSupported StringList `yaml:"scopesSupported,omitempty" env:"OAUTH_SCOPES_SUPPORTED"`
	// Algorithms restricts accepted JWT signing algorithms.
	Algorithms StringList `yaml:"algorithms,omitempty"`
}

// SessionConfig controls the session cache.
type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl,omitempty" env:"SESSION_TTL"`
	SweepInterval time.Duration `yaml:"sweepInterval,omitempty" env:"SESSION_SWEEP_INTERVAL"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" env:"LOG_LEVEL"`
	Format string `yaml:"format,omitempty" env:"LOG_FORMAT"`
}

// StringList is a list read from YAML sequences or comma separated
// environment variables.
type StringList []string

// Decode implements envdecode.Decoder.
func (l *StringList) Decode(value string) error {
	var out StringList
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*l = out
	return nil
}
