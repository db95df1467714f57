// Package hub owns the operator-facing session loop.
//
// Ownership boundary:
// - accepting one operator connection at a time
//
// - announcing the instrument directory once per session
//
// - feeding command envelopes to the dispatcher
//
// Lifecycle order:
// - listening -> announcing -> serving -> listening
//
// - terminated only when the run context ends
//
// A failed session never stops the hub; it is torn down and the loop returns
// to listening.
package hub
