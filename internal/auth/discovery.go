package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// ProviderEndpoints are the identity provider URLs matrix-mcp talks to or
// advertises in its OAuth metadata.
type ProviderEndpoints struct {
	Issuer           string
	JWKSURL          string
	UserinfoURL      string
	TokenURL         string
	AuthorizationURL string
	RegistrationURL  string
	RevocationURL    string
	ScopesSupported  []string
}

// KeycloakEndpoints derives the endpoints of a Keycloak realm from its
// issuer URL without any network traffic.
func KeycloakEndpoints(issuer string) ProviderEndpoints {
	base := strings.TrimSuffix(issuer, "/")
	return ProviderEndpoints{
		Issuer:           base,
		JWKSURL:          base + "/protocol/openid-connect/certs",
		UserinfoURL:      base + "/protocol/openid-connect/userinfo",
		TokenURL:         base + "/protocol/openid-connect/token",
		AuthorizationURL: base + "/protocol/openid-connect/auth",
		RegistrationURL:  base + "/clients-registrations/openid-connect",
		RevocationURL:    base + "/protocol/openid-connect/revoke",
	}
}

// Merge fills empty fields of e from fallback.
func (e ProviderEndpoints) Merge(fallback ProviderEndpoints) ProviderEndpoints {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	e.Issuer = pick(e.Issuer, fallback.Issuer)
	e.JWKSURL = pick(e.JWKSURL, fallback.JWKSURL)
	e.UserinfoURL = pick(e.UserinfoURL, fallback.UserinfoURL)
	e.TokenURL = pick(e.TokenURL, fallback.TokenURL)
	e.AuthorizationURL = pick(e.AuthorizationURL, fallback.AuthorizationURL)
	e.RegistrationURL = pick(e.RegistrationURL, fallback.RegistrationURL)
	e.RevocationURL = pick(e.RevocationURL, fallback.RevocationURL)
	if len(e.ScopesSupported) == 0 {
		e.ScopesSupported = fallback.ScopesSupported
	}
	return e
}

// Discover reads the issuer's OpenID Connect discovery document. The
// document's issuer must match the requested one.
func Discover(ctx context.Context, issuer string, httpClient *http.Client) (ProviderEndpoints, error) {
	if issuer == "" {
		return ProviderEndpoints{}, fmt.Errorf("issuer is required")
	}
	if httpClient != nil {
		ctx = oidc.ClientContext(ctx, httpClient)
	}

	provider, err := oidc.NewProvider(ctx, strings.TrimSuffix(issuer, "/"))
	if err != nil {
		return ProviderEndpoints{}, fmt.Errorf("oidc discovery failed: %w", err)
	}

	var meta struct {
		Issuer        string   `json:"issuer"`
		JwksURI       string   `json:"jwks_uri"`
		Userinfo      string   `json:"userinfo_endpoint"`
		Token         string   `json:"token_endpoint"`
		Authorization string   `json:"authorization_endpoint"`
		Registration  string   `json:"registration_endpoint"`
		Revocation    string   `json:"revocation_endpoint"`
		Scopes        []string `json:"scopes_supported"`
	}
	if err := provider.Claims(&meta); err != nil {
		return ProviderEndpoints{}, fmt.Errorf("invalid discovery metadata: %w", err)
	}

	var missing []string
	if meta.JwksURI == "" {
		missing = append(missing, "jwks_uri")
	}
	if meta.Token == "" {
		missing = append(missing, "token_endpoint")
	}
	if len(missing) > 0 {
		return ProviderEndpoints{}, fmt.Errorf("discovery incomplete: missing %s", strings.Join(missing, ", "))
	}

	return ProviderEndpoints{
		Issuer:           meta.Issuer,
		JWKSURL:          meta.JwksURI,
		UserinfoURL:      meta.Userinfo,
		TokenURL:         meta.Token,
		AuthorizationURL: meta.Authorization,
		RegistrationURL:  meta.Registration,
		RevocationURL:    meta.Revocation,
		ScopesSupported:  append([]string(nil), meta.Scopes...),
	}, nil
}
