package server

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"

	"matrixmcp/internal/auth"
	"matrixmcp/internal/matrix"
	"matrixmcp/internal/oauth"
	"matrixmcp/pkg/logging"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned to the current request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// withRequestID tags each request with an id, reusing a well formed id
// sent by the client.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		logging.Debug("Server", "%s %s (request %s)", r.Method, r.URL.Path, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// withCORS answers preflight requests and sets the allow headers. An empty
// allow-list permits every origin.
func withCORS(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			switch {
			case len(allowed) == 0:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case slices.Contains(allowed, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			default:
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Access-Control-Expose-Headers", "Mcp-Session-Id, WWW-Authenticate, "+RequestIDHeader)
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{
				"Content-Type", "Accept", "Authorization", "Mcp-Session-Id", "Mcp-Protocol-Version",
				matrix.HeaderUserID, matrix.HeaderHomeserverURL, matrix.HeaderAccessToken,
			}, ", "))
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireBearer verifies the Authorization header and stores the verified
// identity in the request context.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			s.challenge(w, http.StatusUnauthorized, "", "")
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			s.challenge(w, http.StatusBadRequest, oauth.ErrorInvalidRequest, "malformed bearer authorization header")
			return
		}

		identity, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			if auth.IsRetryable(err) {
				logging.Warn("Server", "Token verification unavailable: %v", err)
				w.Header().Set("Retry-After", "5")
				http.Error(w, "token verification temporarily unavailable", http.StatusServiceUnavailable)
				return
			}
			logging.Info("Server", "Rejected bearer token: %v", err)
			s.challenge(w, http.StatusUnauthorized, oauth.ErrorInvalidToken, err.Error())
			return
		}

		if required := s.cfg.OAuth.RequiredScopes; !identity.HasScopes(required...) {
			logging.Info("Server", "Token for client %s lacks required scopes", identity.ClientID)
			s.challenge(w, http.StatusForbidden, oauth.ErrorInsufficientScope, "insufficient scope")
			return
		}

		logging.Debug("Server", "Verified bearer token for %s (client %s)",
			logging.TruncateIdentity(identity.Subject), identity.ClientID)
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), identity)))
	})
}

func (s *Server) challenge(w http.ResponseWriter, status int, code, description string) {
	params := oauth.WWWAuthenticateParams{
		Scheme:              "Bearer",
		Realm:               Realm,
		Error:               code,
		ErrorDescription:    description,
		ResourceMetadataURL: s.resourceMetadataURL(),
	}
	if code == oauth.ErrorInsufficientScope {
		params.Scope = strings.Join(s.cfg.OAuth.RequiredScopes, " ")
	}
	w.Header().Set("WWW-Authenticate", params.String())
	w.WriteHeader(status)
}

// requestContext makes the caller's Matrix credentials available to tool
// handlers.
func requestContext(ctx context.Context, r *http.Request) context.Context {
	var bearer, subject string
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		bearer = identity.Token.Value()
		subject = identity.Subject
	}
	rc := matrix.CredentialsFromHeaders(r.Header, bearer)
	rc.Subject = subject
	return matrix.ContextWithRequestCredentials(ctx, rc)
}
