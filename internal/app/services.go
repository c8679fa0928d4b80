package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"matrixmcp/internal/auth"
	"matrixmcp/internal/config"
	"matrixmcp/internal/matrix"
	"matrixmcp/internal/oauth"
	"matrixmcp/internal/server"
	"matrixmcp/internal/session"
	"matrixmcp/internal/tools"
	"matrixmcp/pkg/logging"
)

// ServerName is reported to MCP clients during initialization.
const ServerName = "matrix-mcp"

// discoveryTimeout bounds the startup discovery request.
const discoveryTimeout = 15 * time.Second

// Services holds every wired component of a running server.
type Services struct {
	// Server serves the MCP endpoint and the OAuth metadata.
	Server *server.Server

	// Provider resolves request credentials to Matrix sessions.
	Provider *matrix.Provider

	// Sessions caches bootstrapped sessions per user and homeserver.
	Sessions *session.Cache[matrix.Session]

	// Verifier validates bearer tokens. Nil when OAuth is disabled.
	Verifier *auth.Verifier

	// Endpoints are the identity provider URLs in use. Empty when OAuth is
	// disabled.
	Endpoints auth.ProviderEndpoints
}

// InitializeServices wires the server from settings.
//
// Initialization order:
//  1. Identity provider HTTP client (custom CA if configured)
//  2. Endpoint resolution: explicit URLs, then discovery, then Keycloak
//     conventions derived from the issuer
//  3. Key resolver and token verifier
//  4. Token exchanger (when enabled)
//  5. Session cache with its background sweep
//  6. Connection bootstrapper and session provider
//  7. MCP server with every tool registered, and its HTTP front end
//
// The session cache is shut down when the HTTP server stops.
func InitializeServices(ctx context.Context, cfg *Config, settings config.Config) (*Services, error) {
	idpClient, err := oauth.NewHTTPClient(settings.OAuth.CAFile, oauth.DefaultHTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity provider HTTP client: %w", err)
	}

	services := &Services{}

	var serverOAuth *server.OAuthConfig
	if settings.OAuth.Enabled {
		services.Endpoints = ResolveEndpoints(ctx, settings.OAuth, idpClient)
		logging.Info("Services", "Using identity provider %s (jwks %s)", services.Endpoints.Issuer, services.Endpoints.JWKSURL)

		keys := auth.NewKeyResolver(services.Endpoints.JWKSURL, auth.WithKeyHTTPClient(idpClient))
		opts := []auth.VerifierOption{
			auth.WithIssuer(services.Endpoints.Issuer),
			auth.WithUserinfoHTTPClient(idpClient),
		}
		if len(settings.OAuth.Algorithms) > 0 {
			opts = append(opts, auth.WithAlgorithms(settings.OAuth.Algorithms...))
		}
		services.Verifier = auth.NewVerifier(keys, services.Endpoints.UserinfoURL, opts...)

		serverOAuth = &server.OAuthConfig{
			ResourceURL:    settings.ResourceURL(),
			Endpoints:      services.Endpoints,
			RequiredScopes: settings.OAuth.ScopesSupported,
		}
	}

	var exchanger matrix.Exchanger
	if settings.OAuth.TokenExchange {
		exchanger = oauth.NewTokenExchanger(
			oauth.WithHTTPClient(idpClient),
			oauth.WithLogger(logging.Logger()),
		)
		logging.Info("Services", "Token exchange enabled for client %s", settings.Matrix.ClientID)
	}

	services.Sessions = session.New[matrix.Session](
		session.WithTTL(settings.Session.TTL),
		session.WithSweepInterval(settings.Session.SweepInterval),
	)

	bootstrapper := matrix.NewBootstrapper(
		matrix.WithSyncTimeout(settings.Matrix.SyncTimeout),
		matrix.WithHTTPTimeout(settings.Matrix.HTTPTimeout),
	)

	services.Provider = matrix.NewProvider(matrix.ProviderConfig{
		DefaultServer:   settings.Matrix.HomeserverURL,
		OAuthEnabled:    settings.OAuth.Enabled,
		ExchangeEnabled: settings.OAuth.TokenExchange,
		IdPURL:          services.Endpoints.Issuer,
		TokenEndpoint:   services.Endpoints.TokenURL,
		ClientID:        settings.Matrix.ClientID,
		ClientSecret:    settings.Matrix.ClientSecret,
		Audience:        settings.Matrix.EffectiveAudience(),
	}, exchanger, bootstrapper, services.Sessions)

	mcpServer := server.NewMCPServer(ServerName, cfg.Version)
	toolset := tools.New(services.Provider)
	toolset.Register(mcpServer)
	logging.Info("Services", "Registered %d tools", len(toolset.Tools()))

	// Avoid handing a typed nil to the server.
	var verifier server.TokenVerifier
	if services.Verifier != nil {
		verifier = services.Verifier
	}

	services.Server, err = server.New(server.Config{
		Host:               settings.Server.Host,
		Port:               settings.Server.Port,
		TLS:                settings.Server.EnableHTTPS,
		CertFile:           settings.Server.SSLCertPath,
		KeyFile:            settings.Server.SSLKeyPath,
		CORSAllowedOrigins: settings.Server.CORSAllowedOrigins,
		OAuth:              serverOAuth,
	}, mcpServer, verifier)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP server: %w", err)
	}

	services.Sessions.Start()
	services.Server.OnShutdown(services.Provider.Shutdown)

	return services, nil
}

// ResolveEndpoints combines explicitly configured endpoint URLs with the
// issuer's discovery document (when enabled) and Keycloak conventions.
// Explicit URLs always win. A failed discovery falls back to the
// conventions.
func ResolveEndpoints(ctx context.Context, cfg config.OAuthConfig, httpClient *http.Client) auth.ProviderEndpoints {
	endpoints := auth.ProviderEndpoints{
		Issuer:           cfg.IssuerURL,
		JWKSURL:          cfg.JWKSURL,
		UserinfoURL:      cfg.UserinfoURL,
		TokenURL:         cfg.TokenURL,
		AuthorizationURL: cfg.AuthorizationURL,
		RegistrationURL:  cfg.RegistrationURL,
		RevocationURL:    cfg.RevocationURL,
		ScopesSupported:  cfg.ScopesSupported,
	}

	if cfg.Discovery {
		discoverCtx, cancel := context.WithTimeout(ctx, discoveryTimeout)
		defer cancel()
		discovered, err := auth.Discover(discoverCtx, cfg.IssuerURL, httpClient)
		if err != nil {
			logging.Warn("Services", "Discovery for %s failed, deriving endpoints from the issuer: %v", cfg.IssuerURL, err)
		} else {
			endpoints = endpoints.Merge(discovered)
		}
	}

	return endpoints.Merge(auth.KeycloakEndpoints(cfg.IssuerURL))
}
