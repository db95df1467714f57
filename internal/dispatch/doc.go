// Package dispatch executes SCPI command envelopes against instruments.
//
// A command containing "?" is a Query: the resource is opened, the command
// written, the instrument given a settle delay, one line read and the
// resource closed. Anything else is a Set: pre-delay, open, write,
// post-delay, close. Every path closes the resource exactly once.
package dispatch
