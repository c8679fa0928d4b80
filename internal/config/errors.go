package config

import (
	"fmt"
	"strings"
)

// Error types reported by ConfigurationError.
const (
	ErrorTypeIO    = "io"
	ErrorTypeParse = "parse"
)

// ConfigurationError represents a structured error that occurs during configuration loading
type ConfigurationError struct {
	Source      string   `json:"source"`      // File path, or "environment"
	ErrorType   string   `json:"errorType"`   // Type of error (parse, io)
	Message     string   `json:"message"`     // Human-readable error message
	Details     string   `json:"details"`     // Underlying error text
	Suggestions []string `json:"suggestions"` // Actionable suggestions to fix the error

	err error
}

// NewConfigurationError wraps err with its source and type.
func NewConfigurationError(source, errorType, message string, err error) *ConfigurationError {
	ce := &ConfigurationError{
		Source:    source,
		ErrorType: errorType,
		Message:   message,
		err:       err,
	}
	if err != nil {
		ce.Details = err.Error()
	}
	if errorType == ErrorTypeParse && source != "environment" {
		ce.Suggestions = []string{"Check the YAML syntax and field names against `matrix-mcp config show`"}
	}
	return ce
}

// Error implements the error interface
func (ce *ConfigurationError) Error() string {
	if ce.Details == "" {
		return fmt.Sprintf("%s: %s", ce.Source, ce.Message)
	}
	return fmt.Sprintf("%s: %s: %s", ce.Source, ce.Message, ce.Details)
}

func (ce *ConfigurationError) Unwrap() error {
	return ce.err
}

// DetailedError returns a detailed error message with all context
func (ce *ConfigurationError) DetailedError() string {
	parts := []string{
		fmt.Sprintf("Configuration Error in %s", ce.Source),
		fmt.Sprintf("  Type: %s", ce.ErrorType),
		fmt.Sprintf("  Error: %s", ce.Message),
	}
	if ce.Details != "" {
		parts = append(parts, fmt.Sprintf("  Details: %s", ce.Details))
	}
	if len(ce.Suggestions) > 0 {
		parts = append(parts, "  Suggestions:")
		for _, suggestion := range ce.Suggestions {
			parts = append(parts, fmt.Sprintf("    - %s", suggestion))
		}
	}
	return strings.Join(parts, "\n")
}
