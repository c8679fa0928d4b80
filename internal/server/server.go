package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"matrixmcp/internal/auth"
	"matrixmcp/pkg/logging"
)

const (
	// DefaultReadHeaderTimeout is the default timeout for reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultIdleTimeout is the default idle timeout for keepalive connections.
	DefaultIdleTimeout = 120 * time.Second
	// DefaultShutdownTimeout bounds the HTTP drain on shutdown.
	DefaultShutdownTimeout = 10 * time.Second

	// MCPPath is where the streamable HTTP MCP endpoint is mounted.
	MCPPath = "/mcp"
	// HealthPath is the unauthenticated liveness endpoint.
	HealthPath = "/health"

	// ProtectedResourceMetadataPath serves RFC 9728 metadata.
	ProtectedResourceMetadataPath = "/.well-known/oauth-protected-resource"
	// AuthorizationServerMetadataPath serves RFC 8414 metadata.
	AuthorizationServerMetadataPath = "/.well-known/oauth-authorization-server"

	// Realm is advertised in Bearer challenges.
	Realm = "matrix-mcp"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.VerifiedIdentity, error)
}

// OAuthConfig enables bearer protection of the MCP endpoint and the
// well-known metadata documents.
type OAuthConfig struct {
	// ResourceURL is the public URL of the MCP endpoint.
	ResourceURL string

	// Endpoints are the identity provider URLs advertised to clients.
	Endpoints auth.ProviderEndpoints

	// RequiredScopes must all be granted to the bearer token.
	RequiredScopes []string
}

// Config holds the HTTP server settings.
type Config struct {
	Host string
	Port int

	// TLS serves HTTPS with CertFile and KeyFile.
	TLS      bool
	CertFile string
	KeyFile  string

	// CORSAllowedOrigins restricts cross-origin requests. Empty allows all.
	CORSAllowedOrigins []string

	// OAuth is nil when bearer authentication is disabled.
	OAuth *OAuthConfig

	// ShutdownTimeout bounds the HTTP drain. Zero selects DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server serves the MCP endpoint over HTTP.
type Server struct {
	cfg        Config
	mcpHandler http.Handler
	verifier   TokenVerifier

	mu         sync.Mutex
	httpServer *http.Server
	onShutdown []func()
}

// New creates a server for mcpServer. verifier is required when OAuth is
// configured.
func New(cfg Config, mcpServer *mcpserver.MCPServer, verifier TokenVerifier) (*Server, error) {
	if mcpServer == nil {
		return nil, fmt.Errorf("MCP server is required")
	}
	if cfg.OAuth != nil {
		if verifier == nil {
			return nil, fmt.Errorf("token verifier is required when OAuth is enabled")
		}
		if cfg.OAuth.ResourceURL == "" {
			return nil, fmt.Errorf("resource URL is required when OAuth is enabled")
		}
	}
	if cfg.TLS && (cfg.CertFile == "" || cfg.KeyFile == "") {
		return nil, fmt.Errorf("HTTPS enabled but certificate or key path not provided")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	return &Server{
		cfg:      cfg,
		verifier: verifier,
		mcpHandler: mcpserver.NewStreamableHTTPServer(mcpServer,
			mcpserver.WithEndpointPath(MCPPath),
			mcpserver.WithHTTPContextFunc(requestContext),
		),
	}, nil
}

// NewMCPServer creates the MCP protocol server that tools are registered on.
func NewMCPServer(name, version string) *mcpserver.MCPServer {
	return mcpserver.NewMCPServer(name, version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions("Tools for reading and acting on a Matrix account. "+
			"Select the account with the matrix_user_id and matrix_homeserver_url headers."),
		mcpserver.WithToolHandlerMiddleware(logToolCalls),
	)
}

// logToolCalls records every tool invocation at debug level.
func logToolCalls(next mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logging.Debug("MCP", "Calling tool %s (request %s)", req.Params.Name, RequestIDFromContext(ctx))
		return next(ctx, req)
	}
}

// OnShutdown registers fn to run after the HTTP server has drained.
func (s *Server) OnShutdown(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onShutdown = append(s.onShutdown, fn)
}

// Handler returns the root handler with every route and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if s.cfg.OAuth != nil {
		s.setupMetadataRoutes(mux)
		mux.Handle(MCPPath, s.requireBearer(s.mcpHandler))
		logging.Info("Server", "Protected %s with bearer authentication", MCPPath)
	} else {
		mux.Handle(MCPPath, s.mcpHandler)
	}

	return withRequestID(withCORS(s.cfg.CORSAllowedOrigins, mux))
}

// ListenAndServe serves until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	scheme := "http"
	if s.cfg.TLS {
		scheme = "https"
	}
	logging.Info("Server", "MCP %s server listening on %s", scheme, ln.Addr())
	logging.Info("Server", "MCP endpoint: %s://%s%s", scheme, ln.Addr(), MCPPath)

	errCh := make(chan error, 1)
	go func() {
		if s.cfg.TLS {
			errCh <- httpServer.ServeTLS(ln, s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			errCh <- httpServer.Serve(ln)
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.runShutdownHooks()
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown drains HTTP connections and then runs the shutdown hooks.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()

	var err error
	if httpServer != nil {
		logging.Info("Server", "Shutting down HTTP server")
		if shutdownErr := httpServer.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("failed to shut down HTTP server: %w", shutdownErr)
		}
	}
	s.runShutdownHooks()
	return err
}

func (s *Server) runShutdownHooks() {
	s.mu.Lock()
	hooks := s.onShutdown
	s.onShutdown = nil
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}
