// Package tools exposes Matrix operations as MCP tools.
//
// Every handler resolves the caller's session through a SessionSource,
// using the credentials the HTTP layer placed on the request context.
// Failures are returned as tool error results rather than protocol
// errors, so clients always see a readable message.
package tools
