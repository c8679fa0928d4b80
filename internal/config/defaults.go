package config

import (
	"strconv"
	"time"
)

const (
	DefaultHost          = "127.0.0.1"
	DefaultPort          = 3000
	DefaultHomeserverURL = "https://localhost:8008/"

	DefaultSessionTTL           = 15 * time.Minute
	DefaultSessionSweepInterval = 5 * time.Minute
	DefaultSyncTimeout          = 60 * time.Second
	DefaultHTTPTimeout          = 30 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// GetDefaultConfig returns the configuration used when nothing is set.
func GetDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Matrix: MatrixConfig{
			HomeserverURL: DefaultHomeserverURL,
			SyncTimeout:   DefaultSyncTimeout,
			HTTPTimeout:   DefaultHTTPTimeout,
		},
		Session: SessionConfig{
			TTL:           DefaultSessionTTL,
			SweepInterval: DefaultSessionSweepInterval,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// ResourceURL returns the public MCP endpoint URL, derived from the
// listener when not configured.
func (c Config) ResourceURL() string {
	if c.Server.PublicURL != "" {
		return c.Server.PublicURL
	}
	scheme := "http"
	if c.Server.EnableHTTPS {
		scheme = "https"
	}
	return scheme + "://localhost:" + strconv.Itoa(c.Server.Port) + "/mcp"
}
