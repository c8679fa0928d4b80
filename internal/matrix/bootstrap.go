package matrix

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"matrixmcp/internal/oauth"
	"matrixmcp/pkg/logging"
)

// Default bootstrap timeouts.
const (
	DefaultSyncTimeout = 60 * time.Second
	DefaultHTTPTimeout = 30 * time.Second
)

// Credentials identify the session to bootstrap.
type Credentials struct {
	Server   string
	Identity string
	Token    oauth.RedactedToken
	// TokenLogin presents Token to the login endpoint instead of using it
	// as the access token directly.
	TokenLogin bool
}

// Transport is an unauthenticated homeserver connection that Bootstrapper
// turns into a Session.
type Transport interface {
	Session

	// SetAccessToken installs token as the access token.
	SetAccessToken(token string)
	// LoginWithToken exchanges token for an access token at the login
	// endpoint and installs the result.
	LoginWithToken(ctx context.Context, token string) error
	// StartSync starts background sync. Any setup done before the loop
	// starts is bounded by ctx; the loop itself runs until Close. prepared
	// is closed after the first sync response has been processed; failed
	// receives the error if the first sync fails.
	StartSync(ctx context.Context) (prepared <-chan struct{}, failed <-chan error)
}

// Dialer constructs a Transport for a homeserver and user.
type Dialer func(server, identity string) (Transport, error)

// Bootstrapper builds authenticated, synced sessions.
type Bootstrapper struct {
	dial        Dialer
	syncTimeout time.Duration
	httpTimeout time.Duration
}

// BootstrapperOption configures a Bootstrapper.
type BootstrapperOption func(*Bootstrapper)

// WithDialer replaces the transport constructor.
func WithDialer(d Dialer) BootstrapperOption {
	return func(b *Bootstrapper) {
		b.dial = d
	}
}

// WithSyncTimeout bounds the wait for the first sync.
func WithSyncTimeout(d time.Duration) BootstrapperOption {
	return func(b *Bootstrapper) {
		if d > 0 {
			b.syncTimeout = d
		}
	}
}

// WithHTTPTimeout bounds the login request.
func WithHTTPTimeout(d time.Duration) BootstrapperOption {
	return func(b *Bootstrapper) {
		if d > 0 {
			b.httpTimeout = d
		}
	}
}

// NewBootstrapper returns a Bootstrapper that dials mautrix transports
// unless WithDialer is given.
func NewBootstrapper(opts ...BootstrapperOption) *Bootstrapper {
	b := &Bootstrapper{
		dial:        DialMautrix,
		syncTimeout: DefaultSyncTimeout,
		httpTimeout: DefaultHTTPTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bootstrap authenticates a new connection and waits for its first sync.
// The connection is closed on any failure after it was dialed.
func (b *Bootstrapper) Bootstrap(ctx context.Context, creds Credentials) (Session, error) {
	if err := validateCredentials(creds); err != nil {
		return nil, err
	}

	start := time.Now()
	transport, err := b.dial(creds.Server, creds.Identity)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", creds.Server, err)
	}

	if err := b.authenticate(ctx, transport, creds); err != nil {
		b.teardown(transport, creds)
		b.audit(creds, "failure", err)
		return nil, err
	}

	if err := b.awaitSync(ctx, transport); err != nil {
		b.teardown(transport, creds)
		b.audit(creds, "failure", err)
		return nil, err
	}

	logging.Info("Matrix", "Session ready for %s on %s (device %s) after %s",
		logging.TruncateIdentity(creds.Identity), creds.Server, transport.DeviceID(),
		time.Since(start).Round(time.Millisecond))
	b.audit(creds, "success", nil)
	return transport, nil
}

func validateCredentials(creds Credentials) error {
	switch {
	case strings.TrimSpace(creds.Server) == "":
		return ErrMissingServer
	case strings.TrimSpace(creds.Identity) == "":
		return ErrMissingIdentity
	case creds.Token.IsEmpty():
		return ErrMissingToken
	}
	return nil
}

func (b *Bootstrapper) authenticate(ctx context.Context, t Transport, creds Credentials) error {
	if !creds.TokenLogin {
		t.SetAccessToken(creds.Token.Value())
		return nil
	}

	loginCtx, cancel := context.WithTimeout(ctx, b.httpTimeout)
	defer cancel()

	if err := t.LoginWithToken(loginCtx, creds.Token.Value()); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("token login: %w", ErrTimeout)
		}
		return fmt.Errorf("token login: %w", classifyError(err))
	}
	return nil
}

// awaitSync starts the sync loop and waits for the first sync. The sync
// timeout covers sync setup as well as the wait itself.
func (b *Bootstrapper) awaitSync(ctx context.Context, t Transport) error {
	syncCtx, cancel := context.WithTimeout(ctx, b.syncTimeout)
	defer cancel()

	prepared, failed := t.StartSync(syncCtx)

	select {
	case <-prepared:
		return nil
	case err := <-failed:
		return fmt.Errorf("%w: %w", ErrSyncFailed, classifyError(err))
	case <-syncCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("waiting for initial sync after %s: %w", b.syncTimeout, ErrTimeout)
	}
}

func (b *Bootstrapper) teardown(t Transport, creds Credentials) {
	if err := t.Close(); err != nil {
		logging.Warn("Matrix", "Failed to close client for %s after bootstrap failure: %v",
			logging.TruncateIdentity(creds.Identity), err)
	}
}

func (b *Bootstrapper) audit(creds Credentials, outcome string, err error) {
	event := logging.AuditEvent{
		Action:   "session_bootstrap",
		Outcome:  outcome,
		Identity: logging.TruncateIdentity(creds.Identity),
		Target:   creds.Server,
	}
	if err != nil {
		event.Details = Describe(err)
	}
	logging.Audit(event)
}
