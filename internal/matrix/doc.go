// Package matrix turns caller credentials into live Matrix sessions.
//
// A Session is an authenticated homeserver connection whose joined-room
// snapshot is kept current by a background sync. Bootstrapper builds one
// from Credentials and returns only after the first sync has been applied,
// or fails with ErrSyncFailed or ErrTimeout after closing the connection.
//
// Provider sits in front of the bootstrapper: it reads the Matrix request
// headers, resolves the access token (a header token, the caller's OAuth
// bearer token, or the result of an RFC 8693 token exchange) and serves
// sessions from a session.Cache so that concurrent tool calls for the same
// user and homeserver share one connection.
//
// Sessions may be used by several tool calls at once. Room state reads come
// from a locked snapshot and every other operation is an independent
// homeserver request.
package matrix
