// Package mismatch persists checksum-mismatch state between audit ticks.
//
// The ledger is the source for the per-tick summary notification: a
// mismatch recorded on one tick stays unresolved until a later tick
// validates the object successfully. It also holds the sweep cursor that
// makes corpus coverage resumable across restarts.
package mismatch
