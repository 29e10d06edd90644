// Package bridge fronts one debug monitor with an HTTP API, so web
// tooling can issue commands and tail notifications without speaking
// the wire protocol.
//
// Ownership boundary:
// - session supervision: resolve, connect, watch, reconnect with backoff
// - the bounded notification history served to pollers
// - HTTP surface and the mapping from session failures to HTTP statuses
// - the optional shared-token gate on the command route
//
// The bridge never reinterprets monitor responses. Status codes, lines,
// and binary payloads pass through; an error-class status is data, not
// an HTTP failure.
package bridge
