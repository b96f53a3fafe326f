package alloc

import (
	"testing"

	"github.com/proxforge/proxforge/pkg/inventory"
)

func testNetwork() inventory.Network {
	return inventory.Network{
		Name:    "lan",
		Subnet:  "10.0.0.0/24",
		Gateway: "10.0.0.1",
		DNS:     "10.0.0.1",
		StaticRange: inventory.StaticRange{
			Start: "10.0.0.2",
			End:   "10.0.0.10",
		},
	}
}

func TestNextIPStartsAtRangeStart(t *testing.T) {
	inv := &inventory.Inventory{Networks: []inventory.Network{testNetwork()}}

	prefix, err := NextIP("lan", inv)
	if err != nil {
		t.Fatalf("NextIP: %v", err)
	}
	if prefix.String() != "10.0.0.2/24" {
		t.Errorf("NextIP = %s, want 10.0.0.2/24", prefix)
	}
}

func TestNextIPSkipsInfrastructure(t *testing.T) {
	network := testNetwork()
	// Gateway and resolver sit inside the static range.
	network.StaticRange.Start = "10.0.0.1"
	network.DNS = "10.0.0.2"
	inv := &inventory.Inventory{Networks: []inventory.Network{network}}

	prefix, err := NextIP("lan", inv)
	if err != nil {
		t.Fatalf("NextIP: %v", err)
	}
	if prefix.Addr().String() != "10.0.0.3" {
		t.Errorf("NextIP = %s, want 10.0.0.3", prefix.Addr())
	}
}

func TestNextIPSkipsHostsAndReservations(t *testing.T) {
	inv := &inventory.Inventory{
		Networks: []inventory.Network{testNetwork()},
		Hosts: []inventory.Host{
			{
				Name: "web01", VMID: 100, Type: inventory.HostTypeVM,
				Interfaces: []inventory.Interface{{Network: "lan", IP: "10.0.0.2/24"}},
			},
			{
				Name: "other", VMID: 101, Type: inventory.HostTypeVM,
				// A different network does not consume lan addresses.
				Interfaces: []inventory.Interface{{Network: "dmz", IP: "10.0.0.3"}},
			},
		},
		Reserved: inventory.Reserved{
			IPs: []inventory.IPReservation{{IP: "10.0.0.3", RefID: "ip:lan:web02"}},
		},
	}

	prefix, err := NextIP("lan", inv)
	if err != nil {
		t.Fatalf("NextIP: %v", err)
	}
	if prefix.Addr().String() != "10.0.0.4" {
		t.Errorf("NextIP = %s, want 10.0.0.4", prefix.Addr())
	}
}

func TestNextIPExhausted(t *testing.T) {
	network := testNetwork()
	network.StaticRange = inventory.StaticRange{Start: "10.0.0.2", End: "10.0.0.2"}
	inv := &inventory.Inventory{
		Networks: []inventory.Network{network},
		Reserved: inventory.Reserved{
			IPs: []inventory.IPReservation{{IP: "10.0.0.2", RefID: "ip:lan:web01"}},
		},
	}

	_, err := NextIP("lan", inv)
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if !IsNoCapacity(err) {
		t.Errorf("error = %v, want NO_CAPACITY", err)
	}
}

func TestNextIPUnknownNetwork(t *testing.T) {
	inv := &inventory.Inventory{Networks: []inventory.Network{testNetwork()}}

	_, err := NextIP("dmz", inv)
	if err == nil {
		t.Fatal("expected error for unknown network")
	}
	if !IsNetworkNotFound(err) {
		t.Errorf("error = %v, want NETWORK_NOT_FOUND", err)
	}
}

func TestNextIPInvalidRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*inventory.Network)
	}{
		{"start after end", func(n *inventory.Network) {
			n.StaticRange = inventory.StaticRange{Start: "10.0.0.10", End: "10.0.0.2"}
		}},
		{"mixed families", func(n *inventory.Network) {
			n.StaticRange = inventory.StaticRange{Start: "10.0.0.2", End: "fd00::10"}
		}},
		{"unparseable start", func(n *inventory.Network) {
			n.StaticRange.Start = "not-an-ip"
		}},
		{"bad subnet", func(n *inventory.Network) {
			n.Subnet = "10.0.0.0"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			network := testNetwork()
			tt.mutate(&network)
			inv := &inventory.Inventory{Networks: []inventory.Network{network}}

			_, err := NextIP("lan", inv)
			if err == nil {
				t.Fatal("expected error")
			}
			if !IsInvalidRange(err) {
				t.Errorf("error = %v, want INVALID_RANGE", err)
			}
		})
	}
}

func TestNextIPDeterministic(t *testing.T) {
	inv := &inventory.Inventory{Networks: []inventory.Network{testNetwork()}}

	first, err := NextIP("lan", inv)
	if err != nil {
		t.Fatalf("NextIP: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := NextIP("lan", inv)
		if err != nil {
			t.Fatalf("NextIP: %v", err)
		}
		if again != first {
			t.Fatalf("NextIP changed between calls: %s then %s", first, again)
		}
	}
}
