package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoadFromPathsRego(t *testing.T) {
	dir := t.TempDir()
	rego := `# Denies every input.
package custom.always

import rego.v1

deny contains "blocked" if {
	true
}
`
	if err := os.WriteFile(filepath.Join(dir, "always.rego"), []byte(rego), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	policies, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("got %d policies, want 1", len(policies))
	}
	if policies[0].Name != "always" {
		t.Errorf("Name = %q, want always", policies[0].Name)
	}
	if policies[0].Description != "Denies every input." {
		t.Errorf("Description = %q", policies[0].Description)
	}
	if !policies[0].Enabled {
		t.Error("loaded policy not enabled")
	}
}

func TestLoadFromPathsJSON(t *testing.T) {
	dir := t.TempDir()
	doc := `{
		"name": "custom",
		"description": "custom rule",
		"rego": "package custom.rule\n\nimport rego.v1\n\ndeny contains \"no\" if { false }\n"
	}`
	if err := os.WriteFile(filepath.Join(dir, "custom.json"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	policies, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("got %d policies, want 1", len(policies))
	}
	if policies[0].Severity != SeverityError {
		t.Errorf("Severity = %q, want error default", policies[0].Severity)
	}
}

func TestLoadFromPathsMissing(t *testing.T) {
	_, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(), []string{"/no/such/path"})
	if err == nil {
		t.Error("expected error for missing path")
	}
}

func TestEngineWithCustomPolicy(t *testing.T) {
	dir := t.TempDir()
	rego := `package custom.storage

import rego.v1

deny contains violation if {
	input.vars.storage == "local"
	violation := {
		"message": "local storage is not allowed for cluster runs",
		"severity": "error",
	}
}
`
	if err := os.WriteFile(filepath.Join(dir, "storage.rego"), []byte(rego), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	e := newTestEngine(t)
	if err := e.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies: %v", err)
	}

	result, err := e.Evaluate(context.Background(), &Input{
		Operation: "apply",
		Vars:      map[string]any{"storage": "local"},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Allowed {
		t.Error("custom policy did not block the run")
	}
}
