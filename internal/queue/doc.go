// Package queue provides the work-queue backends for the checksum audit.
//
// All backends implement audit.Queue: a persistent (or in-memory) FIFO with
// claim-or-release semantics. A claimed item is invisible to other claimants
// until it is deleted or released; release restores visibility without
// duplicating the item.
//
// Drivers:
//   - "memory": in-process FIFO, for tests and single-run usage
//   - "sqlite": SQLite database file
//   - "nats":   NATS JetStream work-queue stream
package queue
