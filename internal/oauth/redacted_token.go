package oauth

import "strings"

const redactedPlaceholder = "[REDACTED]"

// RedactedToken wraps a sensitive credential (bearer token, client secret,
// exchanged homeserver token) so that it cannot leak through logging.
//
// This type implements fmt.Stringer to return "[REDACTED]" instead of the actual
// value, preventing accidental credential leakage in log messages, error
// strings, audit records or the output of `matrix-mcp config show`.
//
// Usage:
//
//	secret := oauth.NewRedactedToken("client-secret")
//	fmt.Println(secret)          // prints: [REDACTED]
//	actualValue := secret.Value() // returns: "client-secret"
//
// RedactedToken also implements encoding.TextUnmarshaler and the envdecode
// Decoder interface so configuration files and environment variables can
// populate it directly.
type RedactedToken struct {
	value string
}

// NewRedactedToken creates a new RedactedToken wrapping the given value.
// Surrounding whitespace is trimmed.
func NewRedactedToken(value string) RedactedToken {
	return RedactedToken{value: strings.TrimSpace(value)}
}

// Value returns the actual token value.
// Use this method only when the token needs to be sent in an HTTP header,
// a form body or a login request. Never log the result of this method.
func (t RedactedToken) Value() string {
	return t.value
}

// String implements fmt.Stringer.
func (t RedactedToken) String() string {
	return redactedPlaceholder
}

// GoString implements fmt.GoStringer for %#v formatting.
func (t RedactedToken) GoString() string {
	return "oauth.RedactedToken{[REDACTED]}"
}

// IsEmpty returns true if the token value is empty.
func (t RedactedToken) IsEmpty() bool {
	return t.value == ""
}

// Display returns "[REDACTED]" for a set value and "(not set)" otherwise.
// Used when rendering configuration.
func (t RedactedToken) Display() string {
	if t.IsEmpty() {
		return "(not set)"
	}
	return redactedPlaceholder
}

// MarshalText implements encoding.TextMarshaler.
func (t RedactedToken) MarshalText() ([]byte, error) {
	return []byte(redactedPlaceholder), nil
}

// MarshalJSON implements json.Marshaler.
func (t RedactedToken) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *RedactedToken) UnmarshalText(text []byte) error {
	*t = NewRedactedToken(string(text))
	return nil
}

// Decode implements envdecode.Decoder.
func (t *RedactedToken) Decode(value string) error {
	*t = NewRedactedToken(value)
	return nil
}
