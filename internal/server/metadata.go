package server

import (
	"encoding/json"
	"net/http"
	"net/url"

	"matrixmcp/pkg/logging"
)

// ResourceName is advertised in the protected resource metadata.
const ResourceName = "Matrix MCP Server"

// ProtectedResourceMetadata is the RFC 9728 document.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
	ResourceName           string   `json:"resource_name,omitempty"`
}

// AuthorizationServerMetadata is the RFC 8414 document describing the
// identity provider.
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	RevocationEndpoint                string   `json:"revocation_endpoint,omitempty"`
	JWKSURI                           string   `json:"jwks_uri,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	RevocationEndpointAuthMethods     []string `json:"revocation_endpoint_auth_methods_supported,omitempty"`
}

func (s *Server) protectedResourceMetadata() ProtectedResourceMetadata {
	return ProtectedResourceMetadata{
		Resource:               s.cfg.OAuth.ResourceURL,
		AuthorizationServers:   []string{s.cfg.OAuth.Endpoints.Issuer},
		ScopesSupported:        s.cfg.OAuth.Endpoints.ScopesSupported,
		BearerMethodsSupported: []string{"header"},
		ResourceName:           ResourceName,
	}
}

func (s *Server) authorizationServerMetadata() AuthorizationServerMetadata {
	ep := s.cfg.OAuth.Endpoints
	meta := AuthorizationServerMetadata{
		Issuer:                            ep.Issuer,
		AuthorizationEndpoint:             ep.AuthorizationURL,
		TokenEndpoint:                     ep.TokenURL,
		RegistrationEndpoint:              ep.RegistrationURL,
		RevocationEndpoint:                ep.RevocationURL,
		JWKSURI:                           ep.JWKSURL,
		ScopesSupported:                   ep.ScopesSupported,
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		CodeChallengeMethodsSupported:     []string{"S256"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post"},
	}
	if ep.RevocationURL != "" {
		meta.RevocationEndpointAuthMethods = []string{"client_secret_post"}
	}
	return meta
}

// resourceMetadataURL is the absolute URL of the protected resource
// metadata, derived from the resource URL's origin.
func (s *Server) resourceMetadataURL() string {
	u, err := url.Parse(s.cfg.OAuth.ResourceURL)
	if err != nil || u.Host == "" {
		return ProtectedResourceMetadataPath
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: ProtectedResourceMetadataPath}).String()
}

func (s *Server) setupMetadataRoutes(mux *http.ServeMux) {
	mux.HandleFunc(ProtectedResourceMetadataPath, metadataHandler(s.protectedResourceMetadata()))
	mux.HandleFunc(AuthorizationServerMetadataPath, metadataHandler(s.authorizationServerMetadata()))
	logging.Info("Server", "Registered OAuth metadata endpoints")
}

func metadataHandler(doc any) http.HandlerFunc {
	body, err := json.Marshal(doc)
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err != nil {
			http.Error(w, "failed to encode metadata", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}
}
