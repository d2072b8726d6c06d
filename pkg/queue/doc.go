// Package queue implements the durable offline operation queue.
//
// Operations enqueued while the connection is down are persisted as
// PendingOperation records, an optimistic local projection is applied
// immediately, and the queue is drained when connectivity returns.
//
// # Ordering
//
// Operations on the same resource key drain strictly in insertion
// order. No ordering is guaranteed across distinct resource keys.
//
// # Conflict policy
//
// Reconciliation is last-write-wins: the authoritative server result
// replaces the local optimistic projection unconditionally.
//
// # Durability
//
// Records are written through a Store so they survive process
// restarts. If the store fails, the operation continues in memory with
// degraded durability and the failure is logged.
package queue
