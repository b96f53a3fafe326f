package ledger

import (
	"fmt"
	"net/netip"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/proxforge/proxforge/pkg/alloc"
	"github.com/proxforge/proxforge/pkg/inventory"
)

// Ledger binds reference tokens to allocated VM IDs and IP addresses over a
// single inventory snapshot. It mutates the snapshot in memory as it goes;
// nothing reaches disk until Commit.
type Ledger struct {
	inv    *inventory.Inventory
	logger zerolog.Logger

	// Deltas accumulated during the run, merged on Commit.
	newVMIDs      []inventory.VMIDReservation
	newIPs        []inventory.IPReservation
	releasedVMIDs []string
	releasedIPs   []string
}

// New creates a ledger over the given inventory snapshot. The snapshot is
// mutated by Reserve/Release calls; hand in a clone if the original must
// stay pristine.
func New(inv *inventory.Inventory) *Ledger {
	return &Ledger{
		inv:    inv,
		logger: log.With().Str("component", "ledger").Logger(),
	}
}

// Inventory returns the snapshot the ledger operates on, including any
// in-memory reservations made so far.
func (l *Ledger) Inventory() *inventory.Inventory {
	return l.inv
}

// ReserveVMID returns the VM ID bound to refID, allocating a fresh one from
// the type's range on first sight. The lookup-before-allocate is what makes
// the operation idempotent per refID.
func (l *Ledger) ReserveVMID(t alloc.ResourceType, refID string) (int, error) {
	if res, ok := l.inv.Reserved.VMIDReservation(refID); ok {
		l.logger.Debug().Str("refId", refID).Int("vmid", res.VMID).Msg("vmid reservation reused")
		return res.VMID, nil
	}

	id, err := alloc.NextVMID(t, l.inv)
	if err != nil {
		return 0, fmt.Errorf("reserve %q: %w", refID, err)
	}

	res := inventory.VMIDReservation{VMID: id, RefID: refID}
	l.inv.Reserved.VMIDs = append(l.inv.Reserved.VMIDs, res)
	l.newVMIDs = append(l.newVMIDs, res)

	l.logger.Info().Str("refId", refID).Int("vmid", id).Str("type", string(t)).Msg("vmid reserved")
	return id, nil
}

// ReleaseVMID removes the binding for refID and returns the freed ID. The
// second return is false when no binding existed; releasing an absent refID
// is a no-op.
func (l *Ledger) ReleaseVMID(refID string) (int, bool) {
	for i, res := range l.inv.Reserved.VMIDs {
		if res.RefID != refID {
			continue
		}
		l.inv.Reserved.VMIDs = append(l.inv.Reserved.VMIDs[:i], l.inv.Reserved.VMIDs[i+1:]...)
		l.releasedVMIDs = append(l.releasedVMIDs, refID)
		l.logger.Info().Str("refId", refID).Int("vmid", res.VMID).Msg("vmid released")
		return res.VMID, true
	}
	return 0, false
}

// ReserveIP returns the address bound to refID on the named network,
// allocating the lowest free address on first sight. The returned prefix
// carries the network subnet's prefix length.
func (l *Ledger) ReserveIP(networkName, refID string) (netip.Prefix, error) {
	if res, ok := l.inv.Reserved.IPReservation(refID); ok {
		prefix, err := l.prefixFor(networkName, res.IP)
		if err != nil {
			return netip.Prefix{}, err
		}
		l.logger.Debug().Str("refId", refID).Str("ip", res.IP).Msg("ip reservation reused")
		return prefix, nil
	}

	prefix, err := alloc.NextIP(networkName, l.inv)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("reserve %q: %w", refID, err)
	}

	res := inventory.IPReservation{IP: prefix.Addr().String(), RefID: refID}
	l.inv.Reserved.IPs = append(l.inv.Reserved.IPs, res)
	l.newIPs = append(l.newIPs, res)

	l.logger.Info().Str("refId", refID).Str("ip", prefix.String()).Str("network", networkName).Msg("ip reserved")
	return prefix, nil
}

// ReleaseIP removes the binding for refID and returns the freed address.
// The second return is false when no binding existed.
func (l *Ledger) ReleaseIP(refID string) (netip.Addr, bool) {
	for i, res := range l.inv.Reserved.IPs {
		if res.RefID != refID {
			continue
		}
		l.inv.Reserved.IPs = append(l.inv.Reserved.IPs[:i], l.inv.Reserved.IPs[i+1:]...)
		l.releasedIPs = append(l.releasedIPs, refID)

		addr, err := inventory.ParseAddr(res.IP)
		if err != nil {
			// Validation guarantees parseability on load; a reservation made
			// through this ledger is always well formed.
			l.logger.Warn().Str("refId", refID).Str("ip", res.IP).Msg("released reservation had unparseable address")
			return netip.Addr{}, true
		}
		l.logger.Info().Str("refId", refID).Str("ip", res.IP).Msg("ip released")
		return addr, true
	}
	return netip.Addr{}, false
}

// PendingVMIDs returns the VM ID reservations created this run and not yet
// committed.
func (l *Ledger) PendingVMIDs() []inventory.VMIDReservation {
	return l.newVMIDs
}

// PendingIPs returns the IP reservations created this run and not yet
// committed.
func (l *Ledger) PendingIPs() []inventory.IPReservation {
	return l.newIPs
}

// Released returns the refIds of the bindings released this run and not yet
// committed, VM IDs first.
func (l *Ledger) Released() (vmids, ips []string) {
	return l.releasedVMIDs, l.releasedIPs
}

// Dirty reports whether the run created or released any reservations.
func (l *Ledger) Dirty() bool {
	return len(l.newVMIDs) > 0 || len(l.newIPs) > 0 ||
		len(l.releasedVMIDs) > 0 || len(l.releasedIPs) > 0
}

// Commit merges the run's reservation deltas into the on-disk inventory.
// Call it only after the dependent external apply has succeeded: until then
// the file stays untouched, so a failed run cannot leak half a reservation
// set to disk.
//
// Commit re-loads the file and applies the deltas to the fresh copy rather
// than writing the in-memory snapshot wholesale, so fields this run never
// touched keep whatever the file now says.
func (l *Ledger) Commit(store *inventory.Store) error {
	if !l.Dirty() {
		l.logger.Debug().Msg("nothing to commit")
		return nil
	}

	current, err := store.Load()
	if err != nil {
		return fmt.Errorf("commit reservations: %w", err)
	}

	released := make(map[string]struct{}, len(l.releasedVMIDs)+len(l.releasedIPs))
	for _, refID := range l.releasedVMIDs {
		released[refID] = struct{}{}
	}
	kept := current.Reserved.VMIDs[:0]
	for _, res := range current.Reserved.VMIDs {
		if _, gone := released[res.RefID]; !gone {
			kept = append(kept, res)
		}
	}
	current.Reserved.VMIDs = kept
	for _, res := range l.newVMIDs {
		if _, exists := current.Reserved.VMIDReservation(res.RefID); !exists {
			current.Reserved.VMIDs = append(current.Reserved.VMIDs, res)
		}
	}

	released = make(map[string]struct{}, len(l.releasedIPs))
	for _, refID := range l.releasedIPs {
		released[refID] = struct{}{}
	}
	keptIPs := current.Reserved.IPs[:0]
	for _, res := range current.Reserved.IPs {
		if _, gone := released[res.RefID]; !gone {
			keptIPs = append(keptIPs, res)
		}
	}
	current.Reserved.IPs = keptIPs
	for _, res := range l.newIPs {
		if _, exists := current.Reserved.IPReservation(res.RefID); !exists {
			current.Reserved.IPs = append(current.Reserved.IPs, res)
		}
	}

	// Template registration rides along with the same commit point.
	current.Templates = l.inv.Templates

	if err := store.Persist(current); err != nil {
		return fmt.Errorf("commit reservations: %w", err)
	}

	l.logger.Info().
		Int("new_vmids", len(l.newVMIDs)).
		Int("new_ips", len(l.newIPs)).
		Int("released_vmids", len(l.releasedVMIDs)).
		Int("released_ips", len(l.releasedIPs)).
		Msg("reservation deltas committed")

	l.newVMIDs, l.newIPs = nil, nil
	l.releasedVMIDs, l.releasedIPs = nil, nil
	return nil
}

// prefixFor rebuilds the full prefix for a stored bare address using the
// network's subnet bits. Reservations persist only the address; the prefix
// length is a property of the network, not the binding.
func (l *Ledger) prefixFor(networkName, ip string) (netip.Prefix, error) {
	network, ok := l.inv.Network(networkName)
	if !ok {
		return netip.Prefix{}, &alloc.Error{Code: alloc.CodeNetworkNotFound, Resource: networkName}
	}
	subnet, err := netip.ParsePrefix(network.Subnet)
	if err != nil {
		return netip.Prefix{}, &alloc.Error{Code: alloc.CodeInvalidRange, Resource: networkName, Err: err}
	}
	addr, err := inventory.ParseAddr(ip)
	if err != nil {
		return netip.Prefix{}, &alloc.Error{Code: alloc.CodeInvalidRange, Resource: networkName, Err: err}
	}
	return netip.PrefixFrom(addr, subnet.Bits()), nil
}
