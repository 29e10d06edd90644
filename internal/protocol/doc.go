// Package protocol owns the XBDM wire contract and parsing primitives.
//
// Ownership boundary:
// - status code table and success/error partition
// - status-line grammar and message field access
// - command model, validation, serialization
package protocol
