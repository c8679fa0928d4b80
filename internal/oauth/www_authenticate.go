package oauth

import (
	"fmt"
	"regexp"
	"strings"
)

// Bearer error codes from RFC 6750 section 3.1.
const (
	ErrorInvalidRequest    = "invalid_request"
	ErrorInvalidToken      = "invalid_token"
	ErrorInsufficientScope = "insufficient_scope"
)

// WWWAuthenticateParams holds the parameters of a Bearer challenge.
type WWWAuthenticateParams struct {
	// Scheme is the authentication scheme (e.g., "Bearer").
	Scheme string

	// Realm names the protected resource.
	Realm string

	// Scope lists the scopes required to access the resource.
	Scope string

	// Error is an RFC 6750 error code if present.
	Error string

	// ErrorDescription provides details about the error.
	ErrorDescription string

	// ResourceMetadataURL points to the RFC 9728 protected resource metadata.
	ResourceMetadataURL string
}

// String renders the parameters as a WWW-Authenticate header value.
// Empty parameters are omitted and quotes inside values are escaped.
//
// Example:
//
//	Bearer realm="matrix-mcp", error="invalid_token",
//	       resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"
func (p *WWWAuthenticateParams) String() string {
	scheme := p.Scheme
	if scheme == "" {
		scheme = "Bearer"
	}

	var parts []string
	add := func(key, value string) {
		if value == "" {
			return
		}
		parts = append(parts, fmt.Sprintf(`%s="%s"`, key, strings.ReplaceAll(value, `"`, `'`)))
	}
	add("realm", p.Realm)
	add("scope", p.Scope)
	add("error", p.Error)
	add("error_description", p.ErrorDescription)
	add("resource_metadata", p.ResourceMetadataURL)

	if len(parts) == 0 {
		return scheme
	}
	return scheme + " " + strings.Join(parts, ", ")
}

var challengeParamRegex = regexp.MustCompile(`(\w+)="([^"]*)"`)

// ParseWWWAuthenticate parses a WWW-Authenticate header value.
// It supports the Bearer scheme with OAuth 2.0 and MCP-specific parameters.
func ParseWWWAuthenticate(header string) *WWWAuthenticateParams {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}

	params := &WWWAuthenticateParams{}

	parts := strings.SplitN(header, " ", 2)
	params.Scheme = strings.TrimSpace(parts[0])
	if len(parts) == 1 {
		return params
	}

	for _, match := range challengeParamRegex.FindAllStringSubmatch(parts[1], -1) {
		if len(match) != 3 {
			continue
		}
		value := match[2]

		switch strings.ToLower(match[1]) {
		case "realm":
			params.Realm = value
		case "scope":
			params.Scope = value
		case "error":
			params.Error = value
		case "error_description":
			params.ErrorDescription = value
		case "resource_metadata":
			params.ResourceMetadataURL = value
		}
	}

	return params
}
