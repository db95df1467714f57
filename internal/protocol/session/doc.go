// Package session owns hub<->console wire helpers.
//
// Ownership boundary:
// - directory snapshot, command and reply message codecs
// - framed connection wrapper with per-message deadlines
// - retry/backoff primitives for the dialing side
//
// Every message in both directions is one length-prefixed frame
// (see package frame) carrying a schema-validated TLV payload.
package session
