// Package ledger tracks bindings from reference tokens to allocated values.
//
// A reservation is keyed by its refId: the original, unresolved token text
// (e.g. "vm:id:web01"). Reserving the same refId twice returns the same
// bound value, which is what keeps repeated resolution passes, and re-runs
// over a half-applied configuration, stable.
//
// A run accumulates two in-memory deltas: reservations created this run and
// reservations released by a destroy run. Neither touches the inventory file
// until Commit, which the calling workflow invokes only after the dependent
// external apply has succeeded. A failed apply leaves the on-disk inventory
// exactly as it was.
package ledger
