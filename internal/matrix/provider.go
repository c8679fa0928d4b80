package matrix

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/singleflight"

	"matrixmcp/internal/oauth"
	"matrixmcp/internal/session"
	"matrixmcp/pkg/logging"
)

// DefaultHomeserverURL is used when neither the request nor the
// configuration names a homeserver.
const DefaultHomeserverURL = "https://localhost:8008/"

// Request headers that select the Matrix user, homeserver and token.
const (
	HeaderUserID        = "matrix_user_id"
	HeaderHomeserverURL = "matrix_homeserver_url"
	HeaderAccessToken   = "matrix_access_token"
)

// RequestCredentials are the Matrix-relevant inputs of one tool call.
type RequestCredentials struct {
	Identity string
	Server   string
	// HeaderToken is a Matrix access token supplied directly by the caller.
	HeaderToken string
	// BearerToken is the caller's verified OAuth bearer token.
	BearerToken string
	// Subject is the verified subject of BearerToken.
	Subject string
}

// CredentialsFromHeaders reads the Matrix request headers. Both the
// underscore and the hyphenated spelling are accepted since some proxies
// drop headers with underscores.
func CredentialsFromHeaders(h http.Header, bearerToken string) RequestCredentials {
	return RequestCredentials{
		Identity:    headerValue(h, HeaderUserID),
		Server:      headerValue(h, HeaderHomeserverURL),
		HeaderToken: headerValue(h, HeaderAccessToken),
		BearerToken: bearerToken,
	}
}

func headerValue(h http.Header, name string) string {
	if v := strings.TrimSpace(h.Get(name)); v != "" {
		return v
	}
	return strings.TrimSpace(h.Get(strings.ReplaceAll(name, "_", "-")))
}

type requestCredentialsKey struct{}

// ContextWithRequestCredentials attaches rc to ctx.
func ContextWithRequestCredentials(ctx context.Context, rc RequestCredentials) context.Context {
	return context.WithValue(ctx, requestCredentialsKey{}, rc)
}

// RequestCredentialsFromContext returns the credentials attached to ctx.
func RequestCredentialsFromContext(ctx context.Context) (RequestCredentials, bool) {
	rc, ok := ctx.Value(requestCredentialsKey{}).(RequestCredentials)
	return rc, ok
}

// Exchanger swaps an identity provider token for a Matrix-scoped token.
type Exchanger interface {
	Exchange(ctx context.Context, req *oauth.ExchangeRequest) (*oauth.ExchangeResult, error)
}

// SessionBootstrapper creates synced sessions.
type SessionBootstrapper interface {
	Bootstrap(ctx context.Context, creds Credentials) (Session, error)
}

// ProviderConfig controls how request credentials become sessions.
type ProviderConfig struct {
	DefaultServer string

	OAuthEnabled    bool
	ExchangeEnabled bool

	IdPURL        string
	TokenEndpoint string
	ClientID      string
	ClientSecret  oauth.RedactedToken
	Audience      string
}

// Provider hands out cached sessions and creates them on demand.
type Provider struct {
	cfg          ProviderConfig
	exchanger    Exchanger
	bootstrapper SessionBootstrapper
	cache        *session.Cache[Session]
	rebinds      singleflight.Group
}

// boundSession is a cached session and the fingerprint of the credential
// that created it.
type boundSession struct {
	Session
	fingerprint [sha256.Size]byte
}

// resolvedCredential is the token a request authenticates with.
type resolvedCredential struct {
	token       oauth.RedactedToken
	viaExchange bool
	fingerprint [sha256.Size]byte
}

func (c resolvedCredential) matches(s *boundSession) bool {
	return subtle.ConstantTimeCompare(c.fingerprint[:], s.fingerprint[:]) == 1
}

// NewProvider wires a Provider. exchanger may be nil when token exchange is
// disabled.
func NewProvider(cfg ProviderConfig, exchanger Exchanger, bootstrapper SessionBootstrapper, cache *session.Cache[Session]) *Provider {
	if cfg.DefaultServer == "" {
		cfg.DefaultServer = DefaultHomeserverURL
	}
	if cfg.Audience == "" {
		cfg.Audience = cfg.ClientID
	}
	return &Provider{
		cfg:          cfg,
		exchanger:    exchanger,
		bootstrapper: bootstrapper,
		cache:        cache,
	}
}

// Target returns the identity and homeserver a request addresses.
func (p *Provider) Target(rc RequestCredentials) (identity, server string) {
	server = rc.Server
	if server == "" {
		server = p.cfg.DefaultServer
	}
	return rc.Identity, server
}

// Session returns the cached session for the request's user and homeserver,
// bootstrapping one on a miss. Concurrent misses for the same key share one
// bootstrap.
//
// A cached session is only handed to requests presenting the credential it
// was created with. A bearer credential is identified by its verified
// subject, so refreshed tokens keep the session. Any other credential
// bootstraps a new session, which replaces the cached one only once it has
// succeeded.
func (p *Provider) Session(ctx context.Context, rc RequestCredentials) (Session, error) {
	identity, server := p.Target(rc)
	if identity == "" {
		return nil, &StepError{Step: StepBootstrap, Err: ErrMissingIdentity}
	}

	cred, err := p.resolveCredential(rc)
	if err != nil {
		return nil, &StepError{Step: StepBootstrap, Err: err}
	}

	cached, err := p.cache.GetOrCreate(ctx, identity, server, func(ctx context.Context) (Session, error) {
		bound, err := p.bootstrap(ctx, identity, server, cred)
		if err != nil {
			return nil, err
		}
		return bound, nil
	})
	if err != nil {
		return nil, err
	}
	if bound, ok := cached.(*boundSession); ok && cred.matches(bound) {
		return bound.Session, nil
	}
	return p.rebind(ctx, identity, server, cred)
}

func (p *Provider) bootstrap(ctx context.Context, identity, server string, cred resolvedCredential) (*boundSession, error) {
	creds := Credentials{
		Server:   server,
		Identity: identity,
		Token:    cred.token,
	}
	if cred.viaExchange {
		exchanged, err := p.exchange(ctx, identity, cred.token)
		if err != nil {
			return nil, &StepError{Step: StepExchange, Err: err}
		}
		creds.Token = exchanged
		creds.TokenLogin = true
	}

	s, err := p.bootstrapper.Bootstrap(ctx, creds)
	if err != nil {
		return nil, &StepError{Step: StepBootstrap, Err: err}
	}
	return &boundSession{Session: s, fingerprint: cred.fingerprint}, nil
}

// rebind bootstraps a session for a credential that differs from the cached
// session's and caches it in place of the old one. The cached session is
// left alone when the bootstrap fails.
func (p *Provider) rebind(ctx context.Context, identity, server string, cred resolvedCredential) (Session, error) {
	logging.Info("Matrix", "Credential for %s on %s does not match the cached session, bootstrapping a new one",
		logging.TruncateIdentity(identity), server)

	flight := identity + "\x00" + server + "\x00" + string(cred.fingerprint[:])
	createCtx := context.WithoutCancel(ctx)
	ch := p.rebinds.DoChan(flight, func() (interface{}, error) {
		bound, err := p.bootstrap(createCtx, identity, server, cred)
		if err != nil {
			return nil, err
		}
		p.cache.Put(identity, server, bound)
		return bound, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*boundSession).Session, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolveCredential picks the token a request authenticates with. A header
// token wins over the bearer token.
func (p *Provider) resolveCredential(rc RequestCredentials) (resolvedCredential, error) {
	if t := oauth.NewRedactedToken(rc.HeaderToken); !t.IsEmpty() {
		return resolvedCredential{
			token:       t,
			fingerprint: sha256.Sum256([]byte("token\x00" + t.Value())),
		}, nil
	}
	if !p.cfg.OAuthEnabled {
		return resolvedCredential{}, ErrMissingToken
	}
	bearer := oauth.NewRedactedToken(rc.BearerToken)
	if bearer.IsEmpty() {
		return resolvedCredential{}, ErrMissingToken
	}

	cred := resolvedCredential{token: bearer, viaExchange: p.cfg.ExchangeEnabled}
	if rc.Subject != "" {
		cred.fingerprint = sha256.Sum256([]byte("subject\x00" + rc.Subject))
	} else {
		cred.fingerprint = sha256.Sum256([]byte("token\x00" + bearer.Value()))
	}
	return cred, nil
}

func (p *Provider) exchange(ctx context.Context, identity string, subject oauth.RedactedToken) (oauth.RedactedToken, error) {
	if p.exchanger == nil {
		return oauth.RedactedToken{}, fmt.Errorf("token exchange is enabled but no exchanger is configured")
	}
	res, err := p.exchanger.Exchange(ctx, &oauth.ExchangeRequest{
		IdPURL:        p.cfg.IdPURL,
		TokenEndpoint: p.cfg.TokenEndpoint,
		ClientID:      p.cfg.ClientID,
		ClientSecret:  p.cfg.ClientSecret,
		Audience:      p.cfg.Audience,
		SubjectToken:  subject,
	})
	if err != nil {
		return oauth.RedactedToken{}, err
	}
	logging.Debug("Matrix", "Exchanged token for %s", logging.TruncateIdentity(identity))
	return res.AccessToken, nil
}

// Invalidate drops the cached session of the request's user and homeserver.
func (p *Provider) Invalidate(rc RequestCredentials) {
	identity, server := p.Target(rc)
	if identity == "" {
		return
	}
	p.cache.Invalidate(identity, server)
}

// Stats reports the cache contents.
func (p *Provider) Stats() session.Stats {
	return p.cache.Stats()
}

// Shutdown closes every cached session.
func (p *Provider) Shutdown() {
	p.cache.ShutdownAll()
}
