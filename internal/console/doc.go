// Package console drives live debug-monitor connections: dialing,
// the connected handshake, strict one-command-at-a-time execution on
// the control stream, and continuous fan-out of push frames from the
// dedicated notification stream.
//
// Ownership boundary:
// - transport lifecycle (dial, deadlines, close) for both streams
// - transaction discipline and the broken-session latch
// - notification dispatch, resync, and subscriber signaling
// - reliability defaults (timeouts, dial backoff, frame limits)
//
// Frame grammar lives in protocol and protocol/wire. Name-to-address
// resolution is the caller's problem; Connect takes "ip:port".
package console
