package policy

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestEvaluateCleanInput(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.Evaluate(context.Background(), &Input{
		Operation: "apply",
		Vars: map[string]any{
			"vmid":    float64(100),
			"address": "10.0.0.2/24",
			"nested":  map[string]any{"gateway": "10.0.0.1"},
		},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Allowed = false, violations: %+v", result.Violations)
	}
}

func TestEvaluateUnresolvedTokens(t *testing.T) {
	cases := []struct {
		name  string
		value string
	}{
		{"vault", "vault:proxmox.secret"},
		{"inventory", "inventory:networks.lan.gateway"},
		{"vmid", "vm:id:web"},
		{"lxc", "lxc:id:dns"},
		{"ip", "ip:lan:web"},
		{"hostip", "host:ip"},
	}
	e := newTestEngine(t)

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := e.Evaluate(context.Background(), &Input{
				Operation: "apply",
				Vars:      map[string]any{"leftover": tc.value},
			})
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if result.Allowed {
				t.Errorf("Allowed = true for leftover token %q", tc.value)
			}
		})
	}
}

func TestEvaluateVMIDRanges(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.Evaluate(context.Background(), &Input{
		Operation: "apply",
		Vars:      map[string]any{},
		Inventory: map[string]any{
			"hosts": []any{
				map[string]any{"name": "web", "type": "vm", "vmid": float64(250)},
			},
		},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Allowed {
		t.Error("Allowed = true for vm host with lxc-range vmid")
	}

	result, err = e.Evaluate(context.Background(), &Input{
		Operation: "apply",
		Vars:      map[string]any{},
		Inventory: map[string]any{
			"hosts": []any{
				map[string]any{"name": "web", "type": "vm", "vmid": float64(100)},
			},
			"templates": []any{
				map[string]any{"name": "debian", "vmid": float64(300)},
			},
		},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Allowed = false for well-formed inventory, violations: %+v", result.Violations)
	}
}

func TestEvaluateTemplateRange(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.Evaluate(context.Background(), &Input{
		Operation: "build",
		Vars:      map[string]any{},
		Inventory: map[string]any{
			"templates": []any{
				map[string]any{"name": "debian", "vmid": float64(150)},
			},
		},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Allowed {
		t.Error("Allowed = true for template with vm-range vmid")
	}
}

func TestSetEnabled(t *testing.T) {
	e := newTestEngine(t)

	if err := e.SetEnabled("unresolved-tokens", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	result, err := e.Evaluate(context.Background(), &Input{
		Operation: "apply",
		Vars:      map[string]any{"leftover": "vm:id:web"},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !result.Allowed {
		t.Error("disabled policy still blocked the run")
	}

	if err := e.SetEnabled("no-such-policy", true); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestListPoliciesSorted(t *testing.T) {
	e := newTestEngine(t)
	policies := e.ListPolicies()
	if len(policies) < 3 {
		t.Fatalf("ListPolicies returned %d policies, want at least 3", len(policies))
	}
	for i := 1; i < len(policies); i++ {
		if policies[i-1].Name > policies[i].Name {
			t.Errorf("policies not sorted: %s before %s", policies[i-1].Name, policies[i].Name)
		}
	}
}
