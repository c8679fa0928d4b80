package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"matrixmcp/pkg/logging"
)

const (
	// DefaultTTL is the idle time after which a session is evicted.
	DefaultTTL = 15 * time.Minute

	// DefaultSweepInterval is how often the background sweep runs.
	DefaultSweepInterval = 5 * time.Minute
)

// ErrCacheClosed is returned by GetOrCreate after ShutdownAll.
var ErrCacheClosed = errors.New("session cache is shut down")

// Connection is a live, closable connection held by the cache.
type Connection interface {
	Close() error
}

// CreateFunc builds a new connection on a cache miss.
type CreateFunc[C Connection] func(ctx context.Context) (C, error)

// Key identifies a cached session.
type Key struct {
	Identity string
	Server   string
}

func (k Key) flightKey() string {
	return k.Identity + "\x00" + k.Server
}

type entry[C Connection] struct {
	conn         C
	createdAt    time.Time
	lastAccessed time.Time
}

// EntryStats describes one cached session.
type EntryStats struct {
	Identity     string
	Server       string
	LastAccessed time.Time
	CreatedAt    time.Time
}

// Stats is a point-in-time snapshot of the cache.
type Stats struct {
	Size    int
	Entries []EntryStats
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	ttl           time.Duration
	sweepInterval time.Duration
	clock         Clock
}

// WithTTL sets the idle time after which sessions are evicted.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithSweepInterval sets how often the background sweep runs.
func WithSweepInterval(interval time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.sweepInterval = interval
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// Cache holds at most one live connection per (identity, server) pair.
//
// Entries idle for longer than the TTL are evicted lazily on lookup and by a
// background sweep that starts on first use. Concurrent misses for the same
// key share a single CreateFunc call. Evicted, invalidated and replaced
// connections are closed outside the cache lock; close errors are logged and
// otherwise ignored.
//
// A cached connection may be handed to several concurrent callers. The
// connection type must tolerate that.
//
// Thread-safe: Yes.
type Cache[C Connection] struct {
	mu      sync.Mutex
	entries map[Key]*entry[C]

	ttl           time.Duration
	sweepInterval time.Duration
	clock         Clock

	running     bool
	closed      bool
	stopCleanup chan struct{}
	loopDone    chan struct{}

	flights singleflight.Group
}

// New creates an empty cache. The background sweep starts on first use or
// on an explicit Start call.
func New[C Connection](opts ...Option) *Cache[C] {
	o := options{
		ttl:           DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		clock:         SystemClock,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Cache[C]{
		entries:       make(map[Key]*entry[C]),
		ttl:           o.ttl,
		sweepInterval: o.sweepInterval,
		clock:         o.clock,
	}
}

// TTL returns the configured idle timeout.
func (c *Cache[C]) TTL() time.Duration {
	return c.ttl
}

// Start launches the background sweep. Calling it again, or after
// ShutdownAll, does nothing.
func (c *Cache[C]) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running || c.closed {
		return
	}
	c.running = true
	c.stopCleanup = make(chan struct{})
	c.loopDone = make(chan struct{})

	go c.cleanupLoop(c.stopCleanup, c.loopDone)

	logging.Debug("SessionCache", "Started sweep every %s (ttl %s)", c.sweepInterval, c.ttl)
}

func (c *Cache[C]) cleanupLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-stop:
			return
		}
	}
}

// Get returns the live connection for the key and refreshes its last-access
// time. An expired entry is removed and closed, and reported as a miss.
func (c *Cache[C]) Get(identity, server string) (C, bool) {
	c.Start()

	key := Key{Identity: identity, Server: server}
	now := c.clock.Now()

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		var zero C
		return zero, false
	}
	if c.expired(e, now) {
		delete(c.entries, key)
		c.mu.Unlock()

		logging.Debug("SessionCache", "Session for %s on %s expired", logging.TruncateIdentity(identity), server)
		c.closeConn(key, e.conn)

		var zero C
		return zero, false
	}
	e.lastAccessed = now
	conn := e.conn
	c.mu.Unlock()

	return conn, true
}

// Put stores conn under the key. A different connection already stored
// under the key is closed. After ShutdownAll, conn itself is closed.
func (c *Cache[C]) Put(identity, server string, conn C) {
	c.put(Key{Identity: identity, Server: server}, conn)
}

func (c *Cache[C]) put(key Key, conn C) bool {
	c.Start()

	now := c.clock.Now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.closeConn(key, conn)
		return false
	}
	old, replaced := c.entries[key]
	c.entries[key] = &entry[C]{conn: conn, createdAt: now, lastAccessed: now}
	c.mu.Unlock()

	if replaced && Connection(old.conn) != Connection(conn) {
		logging.Debug("SessionCache", "Replacing session for %s on %s", logging.TruncateIdentity(key.Identity), key.Server)
		c.closeConn(key, old.conn)
	}
	return true
}

// Invalidate removes and closes the session for the key. Removing an absent
// key is a no-op.
func (c *Cache[C]) Invalidate(identity, server string) {
	key := Key{Identity: identity, Server: server}

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if !ok {
		return
	}

	logging.Info("SessionCache", "Invalidated session for %s on %s", logging.TruncateIdentity(identity), server)
	c.closeConn(key, e.conn)
}

// GetOrCreate returns the cached connection, or builds one with create and
// caches it. Concurrent misses for the same key share one create call and
// its result. A failed create leaves the cache unchanged.
//
// create runs detached from the caller's cancellation so that one caller
// giving up does not fail the others; it must bound its own runtime.
// The caller still stops waiting when ctx is done.
func (c *Cache[C]) GetOrCreate(ctx context.Context, identity, server string, create CreateFunc[C]) (C, error) {
	var zero C

	if conn, ok := c.Get(identity, server); ok {
		return conn, nil
	}

	key := Key{Identity: identity, Server: server}
	createCtx := context.WithoutCancel(ctx)

	ch := c.flights.DoChan(key.flightKey(), func() (interface{}, error) {
		if conn, ok := c.Get(identity, server); ok {
			return conn, nil
		}

		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil, ErrCacheClosed
		}

		conn, err := create(createCtx)
		if err != nil {
			return nil, err
		}
		if !c.put(key, conn) {
			return nil, ErrCacheClosed
		}
		logging.Info("SessionCache", "Cached new session for %s on %s", logging.TruncateIdentity(identity), server)
		return conn, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(C), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Sweep evicts every entry idle for longer than the TTL and returns how many
// were evicted.
func (c *Cache[C]) Sweep() int {
	now := c.clock.Now()

	type victim struct {
		key  Key
		conn C
	}
	var victims []victim

	c.mu.Lock()
	for key, e := range c.entries {
		if c.expired(e, now) {
			victims = append(victims, victim{key: key, conn: e.conn})
			delete(c.entries, key)
		}
	}
	remaining := len(c.entries)
	c.mu.Unlock()

	for _, v := range victims {
		c.closeConn(v.key, v.conn)
	}

	if len(victims) > 0 {
		logging.Info("SessionCache", "Evicted %d idle sessions, %d remaining", len(victims), remaining)
	}
	return len(victims)
}

// ShutdownAll stops the background sweep and closes every cached
// connection. The cache refuses new connections afterwards.
func (c *Cache[C]) ShutdownAll() {
	c.mu.Lock()
	c.closed = true
	var done chan struct{}
	if c.running {
		close(c.stopCleanup)
		done = c.loopDone
		c.running = false
	}
	entries := c.entries
	c.entries = make(map[Key]*entry[C])
	c.mu.Unlock()

	if done != nil {
		<-done
	}

	for key, e := range entries {
		c.closeConn(key, e.conn)
	}

	logging.Info("SessionCache", "Shut down %d sessions", len(entries))
}

// Stats returns the number of cached sessions and their timestamps,
// ordered by identity and server.
func (c *Cache[C]) Stats() Stats {
	c.mu.Lock()
	stats := Stats{
		Size:    len(c.entries),
		Entries: make([]EntryStats, 0, len(c.entries)),
	}
	for key, e := range c.entries {
		stats.Entries = append(stats.Entries, EntryStats{
			Identity:     key.Identity,
			Server:       key.Server,
			LastAccessed: e.lastAccessed,
			CreatedAt:    e.createdAt,
		})
	}
	c.mu.Unlock()

	sort.Slice(stats.Entries, func(i, j int) bool {
		if stats.Entries[i].Identity != stats.Entries[j].Identity {
			return stats.Entries[i].Identity < stats.Entries[j].Identity
		}
		return stats.Entries[i].Server < stats.Entries[j].Server
	})
	return stats
}

// expired must be called with c.mu held.
func (c *Cache[C]) expired(e *entry[C], now time.Time) bool {
	return now.Sub(e.lastAccessed) > c.ttl
}

func (c *Cache[C]) closeConn(key Key, conn C) {
	if err := conn.Close(); err != nil {
		logging.Warn("SessionCache", "Failed to close session for %s on %s: %v",
			logging.TruncateIdentity(key.Identity), key.Server, err)
	}
}
