// Package inventory loads, validates, and persists the ProxForge inventory
// document: the single source of truth for committed hosts, build templates,
// network definitions, and the reservation ledger state.
//
// The inventory is a JSON file on disk. It is read once at the start of a
// workflow run, mutated in memory by the allocation and reservation layers,
// and written back only when the caller decides the run has succeeded. The
// Store never auto-saves.
//
// Validation is a gate: Load refuses to return an inventory that fails
// schema validation, so every downstream consumer can assume a well-formed
// document. Missing optional fields are tolerated; required-field and type
// violations are fatal.
//
// Persist rewrites only the fields the caller is authorized to change (the
// reserved block and the template registry) and serializes with a stable key
// order so inventory diffs stay reviewable.
package inventory
