// Package alloc computes the next free VM identifier and the next free
// static IP address from an inventory snapshot.
//
// Both operations are pure functions of the snapshot they are handed: no
// hidden state, no side effects, and the same inventory plus the same
// request always produces the same result. Reservation bookkeeping lives in
// package ledger; alloc only answers "what would be next".
//
// VM identifiers come from fixed, disjoint ranges per resource type. IP
// addresses come from the inclusive static range of a named network, skipping
// the gateway, the DNS resolver, every committed host address on that
// network, and every ledger reservation.
package alloc
