package inventory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Store reads and writes the inventory file. It holds no inventory state
// itself: Load returns a fresh snapshot every call, and Persist merges the
// authorized fields of the given snapshot back into whatever is on disk.
type Store struct {
	path   string
	logger zerolog.Logger
}

// NewStore creates a store for the inventory file at path.
func NewStore(path string) *Store {
	return &Store{
		path:   path,
		logger: log.With().Str("component", "inventory-store").Str("path", path).Logger(),
	}
}

// Path returns the inventory file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads, parses, and validates the inventory file. A parse error or
// schema violation fails the load; nothing downstream may run against an
// unvalidated inventory.
func (s *Store) Load() (*Inventory, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read inventory %s: %w", s.path, err)
	}

	var inv Inventory
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, &SchemaError{Err: fmt.Errorf("parse %s: %w", s.path, err)}
	}

	if err := Validate(&inv); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Int("networks", len(inv.Networks)).
		Int("hosts", len(inv.Hosts)).
		Int("templates", len(inv.Templates)).
		Int("reserved_vmids", len(inv.Reserved.VMIDs)).
		Int("reserved_ips", len(inv.Reserved.IPs)).
		Msg("inventory loaded")

	return &inv, nil
}

// Persist merges the authorized fields of inv (the reserved block and the
// template registry) into the current on-disk document and writes it back.
// Re-reading before writing narrows the lost-update window; there is no
// cross-process lock on the file, so concurrent runs can still race.
//
// The write goes through a temp file plus rename so a crash mid-write never
// leaves a truncated inventory behind.
func (s *Store) Persist(inv *Inventory) error {
	current, err := s.Load()
	if err != nil {
		return fmt.Errorf("reload before persist: %w", err)
	}

	current.Reserved = inv.Reserved
	current.Templates = inv.Templates

	if err := Validate(current); err != nil {
		return fmt.Errorf("refusing to persist: %w", err)
	}

	// Struct-driven marshaling keeps key order stable for diffs.
	raw, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize inventory: %w", err)
	}
	raw = append(raw, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".inventory-*.json")
	if err != nil {
		return fmt.Errorf("create temp inventory: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp inventory: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp inventory: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace inventory: %w", err)
	}

	s.logger.Info().
		Int("reserved_vmids", len(current.Reserved.VMIDs)).
		Int("reserved_ips", len(current.Reserved.IPs)).
		Int("templates", len(current.Templates)).
		Msg("inventory persisted")

	return nil
}
