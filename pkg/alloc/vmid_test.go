package alloc

import (
	"testing"

	"github.com/proxforge/proxforge/pkg/inventory"
)

func TestRangeFor(t *testing.T) {
	tests := []struct {
		resourceType ResourceType
		start, end   int
	}{
		{TypeBaremetal, 0, 99},
		{TypeVM, 100, 199},
		{TypeLXC, 200, 299},
		{TypeTemplate, 300, 399},
	}

	for _, tt := range tests {
		t.Run(string(tt.resourceType), func(t *testing.T) {
			r, ok := RangeFor(tt.resourceType)
			if !ok {
				t.Fatalf("RangeFor(%s) not found", tt.resourceType)
			}
			if r.Start != tt.start || r.End != tt.end {
				t.Errorf("range = [%d,%d], want [%d,%d]", r.Start, r.End, tt.start, tt.end)
			}
		})
	}

	if _, ok := RangeFor("container"); ok {
		t.Error("unknown type has a range")
	}
}

func TestNextVMIDEmptyInventory(t *testing.T) {
	inv := &inventory.Inventory{}

	tests := []struct {
		resourceType ResourceType
		want         int
	}{
		{TypeBaremetal, 0},
		{TypeVM, 100},
		{TypeLXC, 200},
		{TypeTemplate, 300},
	}

	for _, tt := range tests {
		got, err := NextVMID(tt.resourceType, inv)
		if err != nil {
			t.Fatalf("NextVMID(%s): %v", tt.resourceType, err)
		}
		if got != tt.want {
			t.Errorf("NextVMID(%s) = %d, want %d", tt.resourceType, got, tt.want)
		}
	}
}

func TestNextVMIDSkipsUsed(t *testing.T) {
	inv := &inventory.Inventory{
		Hosts: []inventory.Host{
			{Name: "web01", VMID: 100, Type: inventory.HostTypeVM},
			{Name: "web02", VMID: 101, Type: inventory.HostTypeVM},
		},
		Reserved: inventory.Reserved{
			VMIDs: []inventory.VMIDReservation{{VMID: 102, RefID: "vm:id:web03"}},
		},
	}

	got, err := NextVMID(TypeVM, inv)
	if err != nil {
		t.Fatalf("NextVMID: %v", err)
	}
	if got != 103 {
		t.Errorf("NextVMID = %d, want 103", got)
	}
}

func TestNextVMIDFillsGaps(t *testing.T) {
	inv := &inventory.Inventory{
		Hosts: []inventory.Host{
			{Name: "a", VMID: 100, Type: inventory.HostTypeVM},
			{Name: "b", VMID: 102, Type: inventory.HostTypeVM},
		},
	}

	got, err := NextVMID(TypeVM, inv)
	if err != nil {
		t.Fatalf("NextVMID: %v", err)
	}
	if got != 101 {
		t.Errorf("NextVMID = %d, want the gap at 101", got)
	}
}

// A template ID must not shrink the vm range: the ranges are disjoint, so a
// committed template at 300 leaves vm allocation starting at 100.
func TestNextVMIDRangesAreIndependent(t *testing.T) {
	inv := &inventory.Inventory{
		Templates: []inventory.Template{{Name: "debian-base", VMID: 300}},
	}

	got, err := NextVMID(TypeVM, inv)
	if err != nil {
		t.Fatalf("NextVMID: %v", err)
	}
	if got != 100 {
		t.Errorf("NextVMID = %d, want 100", got)
	}

	tpl, err := NextVMID(TypeTemplate, inv)
	if err != nil {
		t.Fatalf("NextVMID(template): %v", err)
	}
	if tpl != 301 {
		t.Errorf("NextVMID(template) = %d, want 301", tpl)
	}
}

func TestNextVMIDExhausted(t *testing.T) {
	inv := &inventory.Inventory{}
	for id := 300; id <= 399; id++ {
		inv.Reserved.VMIDs = append(inv.Reserved.VMIDs, inventory.VMIDReservation{
			VMID: id, RefID: "vm:id:filler",
		})
	}

	_, err := NextVMID(TypeTemplate, inv)
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if !IsNoCapacity(err) {
		t.Errorf("error = %v, want NO_CAPACITY", err)
	}
}

func TestNextVMIDUnknownType(t *testing.T) {
	_, err := NextVMID("container", &inventory.Inventory{})
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
}
