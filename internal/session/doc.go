// Package session caches live homeserver sessions so the expensive login and
// initial sync are not repeated on every tool call.
//
// Cache is keyed by (identity, server) and holds at most one connection per
// key. The lifecycle of a key is:
//
//	Absent -> Connecting -> Ready -> (Expired | Invalidated) -> Absent
//
// Connecting is not visible to Get; GetOrCreate coalesces concurrent misses
// so that only one connection is built per key. Ready entries refresh their
// last-access time on every hit and expire after the TTL (15 minutes by
// default), either lazily on lookup or in the background sweep (every 5
// minutes by default).
//
// Tests drive expiry through a ManualClock and call Sweep directly.
package session
