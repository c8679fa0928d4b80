package auth

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"

	"matrixmcp/internal/oauth"
	"matrixmcp/pkg/logging"
)

const (
	// DefaultMinRefreshInterval limits how often the same unknown kid may
	// trigger a refetch of the key set.
	DefaultMinRefreshInterval = 10 * time.Second

	// maxEarlyRefetchKids bounds how many distinct unknown kids may refetch
	// the key set before the refresh interval has passed.
	maxEarlyRefetchKids = 8

	// maxKeySetBytes bounds the size of a key set response.
	maxKeySetBytes = 1 << 20
)

// KeySource resolves a key identifier to a public verification key.
type KeySource interface {
	Resolve(ctx context.Context, kid string) (crypto.PublicKey, error)
}

// KeyResolver fetches a JSON Web Key Set and caches it for the process
// lifetime. A kid missing from the cached set triggers one refetch, which
// handles key rotation at the identity provider.
//
// Concurrent refetches are coalesced. Within the minimum refresh interval
// each unknown kid may refetch once, for at most a handful of kids, so that
// a freshly rotated key is picked up at once while tokens with made-up kids
// cannot hammer the key set endpoint.
//
// Thread-safe: Yes.
type KeyResolver struct {
	jwksURL            string
	httpClient         *http.Client
	minRefreshInterval time.Duration
	now                func() time.Time

	mu        sync.RWMutex
	keys      map[string]crypto.PublicKey
	fetchedAt time.Time
	// refetched holds the kids that refetched early since the last
	// refetch made after the interval had passed.
	refetched map[string]struct{}

	group singleflight.Group
}

// KeyResolverOption configures a KeyResolver.
type KeyResolverOption func(*KeyResolver)

// WithKeyHTTPClient sets the HTTP client used to fetch the key set.
func WithKeyHTTPClient(client *http.Client) KeyResolverOption {
	return func(r *KeyResolver) {
		r.httpClient = client
	}
}

// WithMinRefreshInterval sets the minimum time between two refetches.
func WithMinRefreshInterval(d time.Duration) KeyResolverOption {
	return func(r *KeyResolver) {
		r.minRefreshInterval = d
	}
}

// NewKeyResolver creates a resolver for the key set at jwksURL. Nothing is
// fetched until the first Resolve call.
func NewKeyResolver(jwksURL string, opts ...KeyResolverOption) *KeyResolver {
	r := &KeyResolver{
		jwksURL:            jwksURL,
		httpClient:         &http.Client{Timeout: oauth.DefaultHTTPTimeout},
		minRefreshInterval: DefaultMinRefreshInterval,
		now:                time.Now,
		refetched:          make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the public key for kid. An empty kid matches when the key
// set holds exactly one signing key.
func (r *KeyResolver) Resolve(ctx context.Context, kid string) (crypto.PublicKey, error) {
	if key, ok := r.lookup(kid); ok {
		return key, nil
	}

	if !r.claimRefetch(kid) {
		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}

	logging.Debug("KeyResolver", "Key %q not cached, fetching key set from %s", kid, r.jwksURL)

	if _, err, _ := r.group.Do("jwks", func() (interface{}, error) {
		return nil, r.refresh(ctx)
	}); err != nil {
		return nil, err
	}

	if key, ok := r.lookup(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

func (r *KeyResolver) lookup(kid string) (crypto.PublicKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if kid == "" {
		if len(r.keys) != 1 {
			return nil, false
		}
		for _, key := range r.keys {
			return key, true
		}
	}
	key, ok := r.keys[kid]
	return key, ok
}

// refreshDue reports whether the refresh interval has passed. r.mu must be
// held.
func (r *KeyResolver) refreshDue() bool {
	return r.fetchedAt.IsZero() || r.now().Sub(r.fetchedAt) >= r.minRefreshInterval
}

// claimRefetch reports whether an unknown kid may refetch the key set.
func (r *KeyResolver) claimRefetch(kid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.refreshDue() {
		return true
	}
	if _, ok := r.refetched[kid]; ok || len(r.refetched) >= maxEarlyRefetchKids {
		return false
	}
	r.refetched[kid] = struct{}{}
	return true
}

func (r *KeyResolver) refresh(ctx context.Context) error {
	keys, err := r.fetch(ctx)
	if err != nil {
		logging.Warn("KeyResolver", "Failed to fetch key set from %s: %v", r.jwksURL, err)
		return err
	}

	r.mu.Lock()
	if r.refreshDue() {
		clear(r.refetched)
	}
	r.keys = keys
	r.fetchedAt = r.now()
	r.mu.Unlock()

	logging.Debug("KeyResolver", "Cached %d signing keys from %s", len(keys), r.jwksURL)
	return nil
}

func (r *KeyResolver) fetch(ctx context.Context) (map[string]crypto.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: key set endpoint returned status %d", ErrKeyFetch, resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !oauth.IsJSONContentType(ct) {
		return nil, fmt.Errorf("%w: unexpected content type %q", ErrKeyFetch, ct)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxKeySetBytes)).Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}

	keys := make(map[string]crypto.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		if !k.Valid() {
			continue
		}
		pub := k.Public()
		if pub.Key == nil {
			continue
		}
		keys[k.KeyID] = pub.Key
	}
	return keys, nil
}
