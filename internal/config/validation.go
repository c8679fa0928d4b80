package config

import (
	"fmt"
	"net/url"
	"strings"

	"matrixmcp/pkg/logging"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// Validate checks cfg for values the server cannot run with.
func Validate(cfg Config) ValidationErrors {
	var errs ValidationErrors

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs.Add("server.port", "must be between 1 and 65535", cfg.Server.Port)
	}
	if strings.TrimSpace(cfg.Server.Host) == "" {
		errs.Add("server.host", "is required")
	}
	if cfg.Server.EnableHTTPS {
		if cfg.Server.SSLKeyPath == "" {
			errs.Add("server.sslKeyPath", "is required when HTTPS is enabled")
		}
		if cfg.Server.SSLCertPath == "" {
			errs.Add("server.sslCertPath", "is required when HTTPS is enabled")
		}
	}
	validateURL(&errs, "server.publicUrl", cfg.Server.PublicURL, false)
	validateURL(&errs, "matrix.homeserverUrl", cfg.Matrix.HomeserverURL, true)

	if cfg.OAuth.Enabled {
		validateURL(&errs, "oauth.issuerUrl", cfg.OAuth.IssuerURL, true)
		for field, value := range map[string]string{
			"oauth.authorizationUrl": cfg.OAuth.AuthorizationURL,
			"oauth.tokenUrl":         cfg.OAuth.TokenURL,
			"oauth.registrationUrl":  cfg.OAuth.RegistrationURL,
			"oauth.revocationUrl":    cfg.OAuth.RevocationURL,
			"oauth.jwksUrl":          cfg.OAuth.JWKSURL,
			"oauth.userinfoUrl":      cfg.OAuth.UserinfoURL,
		} {
			validateURL(&errs, field, value, false)
		}
	}
	if cfg.OAuth.TokenExchange {
		if !cfg.OAuth.Enabled {
			errs.Add("oauth.tokenExchange", "requires oauth.enabled")
		}
		if cfg.Matrix.ClientID == "" {
			errs.Add("matrix.clientId", "is required when token exchange is enabled")
		}
		if cfg.Matrix.ClientSecret.IsEmpty() {
			errs.Add("matrix.clientSecret", "is required when token exchange is enabled")
		}
	}

	positive := []struct {
		field string
		value interface{ Seconds() float64 }
	}{
		{"session.ttl", cfg.Session.TTL},
		{"session.sweepInterval", cfg.Session.SweepInterval},
		{"matrix.syncTimeout", cfg.Matrix.SyncTimeout},
		{"matrix.httpTimeout", cfg.Matrix.HTTPTimeout},
	}
	for _, p := range positive {
		if p.value.Seconds() <= 0 {
			errs.Add(p.field, "must be positive", p.value)
		}
	}

	if _, ok := logging.ParseLevel(cfg.Logging.Level); !ok {
		errs.Add("logging.level", "must be one of: debug, info, warn, error", cfg.Logging.Level)
	}
	if err := ValidateOneOf("logging.format", cfg.Logging.Format, []string{"text", "json"}); err != nil {
		errs = append(errs, err.(ValidationError))
	}

	return errs
}

func validateURL(errs *ValidationErrors, field, value string, required bool) {
	if value == "" {
		if required {
			errs.Add(field, "is required")
		}
		return
	}
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs.Add(field, "must be an absolute http(s) URL", value)
	}
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}
