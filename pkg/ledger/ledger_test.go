package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/proxforge/proxforge/pkg/alloc"
	"github.com/proxforge/proxforge/pkg/inventory"
)

const testInventory = `{
	"proxmox": {"endpoint": "https://pve.example.com:8006"},
	"networks": [
		{
			"name": "lan",
			"subnet": "10.0.0.0/24",
			"gateway": "10.0.0.1",
			"dns": "10.0.0.1",
			"static_range": {"start": "10.0.0.2", "end": "10.0.0.10"}
		}
	]
}`

func setupStore(t *testing.T) *inventory.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "inventory.json")
	if err := os.WriteFile(path, []byte(testInventory), 0o644); err != nil {
		t.Fatalf("write inventory: %v", err)
	}
	return inventory.NewStore(path)
}

func setupLedger(t *testing.T) (*Ledger, *inventory.Store) {
	t.Helper()

	store := setupStore(t)
	inv, err := store.Load()
	if err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	return New(inv), store
}

func TestReserveVMIDIdempotent(t *testing.T) {
	led, _ := setupLedger(t)

	first, err := led.ReserveVMID(alloc.TypeVM, "vm:id:web")
	if err != nil {
		t.Fatalf("ReserveVMID: %v", err)
	}
	if first != 100 {
		t.Errorf("first reservation = %d, want 100", first)
	}

	again, err := led.ReserveVMID(alloc.TypeVM, "vm:id:web")
	if err != nil {
		t.Fatalf("repeat ReserveVMID: %v", err)
	}
	if again != first {
		t.Errorf("repeat reservation = %d, want %d", again, first)
	}
	if len(led.PendingVMIDs()) != 1 {
		t.Errorf("pending = %d, want 1", len(led.PendingVMIDs()))
	}
}

func TestReserveVMIDDistinctRefIDs(t *testing.T) {
	led, _ := setupLedger(t)

	a, err := led.ReserveVMID(alloc.TypeVM, "vm:id:web")
	if err != nil {
		t.Fatalf("ReserveVMID: %v", err)
	}
	b, err := led.ReserveVMID(alloc.TypeVM, "vm:id:db")
	if err != nil {
		t.Fatalf("ReserveVMID: %v", err)
	}
	if a == b {
		t.Errorf("distinct refIds shared vmid %d", a)
	}
}

func TestReserveIPSequence(t *testing.T) {
	led, _ := setupLedger(t)

	host1, err := led.ReserveIP("lan", "ip:lan:host1")
	if err != nil {
		t.Fatalf("ReserveIP host1: %v", err)
	}
	if host1.String() != "10.0.0.2/24" {
		t.Errorf("host1 = %s, want 10.0.0.2/24", host1)
	}

	host2, err := led.ReserveIP("lan", "ip:lan:host2")
	if err != nil {
		t.Fatalf("ReserveIP host2: %v", err)
	}
	if host2.String() != "10.0.0.3/24" {
		t.Errorf("host2 = %s, want 10.0.0.3/24", host2)
	}

	// Repeating host1 returns the original binding, not 10.0.0.4.
	again, err := led.ReserveIP("lan", "ip:lan:host1")
	if err != nil {
		t.Fatalf("repeat ReserveIP: %v", err)
	}
	if again != host1 {
		t.Errorf("repeat = %s, want %s", again, host1)
	}
}

func TestReleaseMakesAddressReusable(t *testing.T) {
	led, _ := setupLedger(t)

	if _, err := led.ReserveIP("lan", "ip:lan:old"); err != nil {
		t.Fatalf("ReserveIP: %v", err)
	}
	addr, ok := led.ReleaseIP("ip:lan:old")
	if !ok {
		t.Fatal("release found no binding")
	}
	if addr.String() != "10.0.0.2" {
		t.Errorf("released = %s, want 10.0.0.2", addr)
	}

	next, err := led.ReserveIP("lan", "ip:lan:new")
	if err != nil {
		t.Fatalf("ReserveIP after release: %v", err)
	}
	if next.Addr().String() != "10.0.0.2" {
		t.Errorf("reallocation = %s, want the freed 10.0.0.2", next.Addr())
	}
}

func TestReleaseAbsentBinding(t *testing.T) {
	led, _ := setupLedger(t)

	if _, ok := led.ReleaseVMID("vm:id:ghost"); ok {
		t.Error("released a vmid binding that never existed")
	}
	if _, ok := led.ReleaseIP("ip:lan:ghost"); ok {
		t.Error("released an ip binding that never existed")
	}
	if led.Dirty() {
		t.Error("absent releases marked the ledger dirty")
	}
}

func TestCommitPersistsDeltas(t *testing.T) {
	led, store := setupLedger(t)

	if _, err := led.ReserveVMID(alloc.TypeVM, "vm:id:web"); err != nil {
		t.Fatalf("ReserveVMID: %v", err)
	}
	if _, err := led.ReserveIP("lan", "ip:lan:web"); err != nil {
		t.Fatalf("ReserveIP: %v", err)
	}

	// Nothing on disk until commit.
	onDisk, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(onDisk.Reserved.VMIDs) != 0 || len(onDisk.Reserved.IPs) != 0 {
		t.Fatal("reservations reached disk before commit")
	}

	if err := led.Commit(store); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	onDisk, err = store.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if res, ok := onDisk.Reserved.VMIDReservation("vm:id:web"); !ok || res.VMID != 100 {
		t.Errorf("vmid binding on disk = %+v, %v", res, ok)
	}
	if res, ok := onDisk.Reserved.IPReservation("ip:lan:web"); !ok || res.IP != "10.0.0.2" {
		t.Errorf("ip binding on disk = %+v, %v", res, ok)
	}

	if led.Dirty() {
		t.Error("ledger still dirty after commit")
	}
}

// Commit merges deltas into the current file contents instead of overwriting
// them, so a binding committed by another run in the meantime survives.
func TestCommitMergesWithConcurrentWrite(t *testing.T) {
	store := setupStore(t)

	inv, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	led := New(inv)
	if _, err := led.ReserveVMID(alloc.TypeVM, "vm:id:web"); err != nil {
		t.Fatalf("ReserveVMID: %v", err)
	}

	// A second run commits its own binding first.
	other, err := store.Load()
	if err != nil {
		t.Fatalf("load for second run: %v", err)
	}
	otherLed := New(other)
	if _, err := otherLed.ReserveVMID(alloc.TypeLXC, "lxc:id:proxy"); err != nil {
		t.Fatalf("ReserveVMID second run: %v", err)
	}
	if err := otherLed.Commit(store); err != nil {
		t.Fatalf("Commit second run: %v", err)
	}

	if err := led.Commit(store); err != nil {
		t.Fatalf("Commit first run: %v", err)
	}

	onDisk, err := store.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := onDisk.Reserved.VMIDReservation("vm:id:web"); !ok {
		t.Error("first run's binding lost")
	}
	if _, ok := onDisk.Reserved.VMIDReservation("lxc:id:proxy"); !ok {
		t.Error("second run's binding lost")
	}
}

func TestCommitCleanLedgerWritesNothing(t *testing.T) {
	led, store := setupLedger(t)

	before, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if err := led.Commit(store); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	after, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(before) != string(after) {
		t.Error("clean commit rewrote the inventory file")
	}
}

func TestReserveIPExhaustionLeavesNoPartialState(t *testing.T) {
	led, _ := setupLedger(t)

	// 10.0.0.2 through 10.0.0.10 is nine addresses.
	for i := 0; i < 9; i++ {
		if _, err := led.ReserveIP("lan", "ip:lan:host"+string(rune('a'+i))); err != nil {
			t.Fatalf("ReserveIP %d: %v", i, err)
		}
	}

	_, err := led.ReserveIP("lan", "ip:lan:overflow")
	if err == nil {
		t.Fatal("expected exhaustion")
	}
	if !alloc.IsNoCapacity(err) {
		t.Errorf("error = %v, want NO_CAPACITY", err)
	}
	if len(led.PendingIPs()) != 9 {
		t.Errorf("pending = %d, want the 9 successful reservations", len(led.PendingIPs()))
	}
}
