// Package stores persists run history in SQLite. Every workflow execution
// becomes a run row with an append-only event log and the allocations it
// committed, so operators can audit which run claimed which VM ID or address.
package stores
