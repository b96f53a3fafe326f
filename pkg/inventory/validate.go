package inventory

import (
	"fmt"
	"net/netip"

	"github.com/go-playground/validator/v10"
)

// SchemaError reports an inventory document that failed validation. The rest
// of the system must never run against an inventory carrying one of these.
type SchemaError struct {
	// Field names the offending field or document path when known.
	Field string

	// Err is the underlying validation failure.
	Err error
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid inventory: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid inventory: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *SchemaError) Unwrap() error {
	return e.Err
}

func schemaErrorf(field, format string, args ...any) *SchemaError {
	return &SchemaError{Field: field, Err: fmt.Errorf(format, args...)}
}

var structValidator = validator.New()

// Validate checks the inventory against the schema: struct-level constraints
// via validator tags, then cross-field invariants the tags cannot express.
func Validate(inv *Inventory) error {
	if inv == nil {
		return &SchemaError{Err: fmt.Errorf("document is empty")}
	}

	if err := structValidator.Struct(inv); err != nil {
		return &SchemaError{Err: err}
	}

	networks := make(map[string]Network, len(inv.Networks))
	for _, n := range inv.Networks {
		if _, dup := networks[n.Name]; dup {
			return schemaErrorf("networks", "duplicate network name %q", n.Name)
		}
		networks[n.Name] = n

		if err := validateStaticRange(n); err != nil {
			return err
		}
	}

	usedVMIDs := make(map[int]string)
	for _, h := range inv.Hosts {
		if owner, dup := usedVMIDs[h.VMID]; dup {
			return schemaErrorf("hosts", "vmid %d assigned to both %q and %q", h.VMID, owner, h.Name)
		}
		usedVMIDs[h.VMID] = h.Name

		for _, iface := range h.Interfaces {
			if _, ok := networks[iface.Network]; !ok {
				return schemaErrorf("hosts", "host %q references unknown network %q", h.Name, iface.Network)
			}
		}
	}

	templateNames := make(map[string]struct{}, len(inv.Templates))
	for _, t := range inv.Templates {
		if _, dup := templateNames[t.Name]; dup {
			return schemaErrorf("templates", "duplicate template name %q", t.Name)
		}
		templateNames[t.Name] = struct{}{}

		if owner, dup := usedVMIDs[t.VMID]; dup {
			return schemaErrorf("templates", "template %q reuses vmid %d of %q", t.Name, t.VMID, owner)
		}
		usedVMIDs[t.VMID] = t.Name
	}

	vmidRefs := make(map[string]struct{}, len(inv.Reserved.VMIDs))
	for _, res := range inv.Reserved.VMIDs {
		if _, dup := vmidRefs[res.RefID]; dup {
			return schemaErrorf("reserved.vmids", "duplicate refId %q", res.RefID)
		}
		vmidRefs[res.RefID] = struct{}{}

		if owner, taken := usedVMIDs[res.VMID]; taken {
			return schemaErrorf("reserved.vmids", "refId %q reserves vmid %d already committed to %q", res.RefID, res.VMID, owner)
		}
	}

	committedIPs := make(map[netip.Addr]string)
	for _, h := range inv.Hosts {
		for _, iface := range h.Interfaces {
			addr, err := ParseAddr(iface.IP)
			if err != nil {
				return schemaErrorf("hosts", "host %q interface on %q: bad address %q: %v", h.Name, iface.Network, iface.IP, err)
			}
			committedIPs[addr] = h.Name
		}
	}

	ipRefs := make(map[string]struct{}, len(inv.Reserved.IPs))
	for _, res := range inv.Reserved.IPs {
		if _, dup := ipRefs[res.RefID]; dup {
			return schemaErrorf("reserved.ips", "duplicate refId %q", res.RefID)
		}
		ipRefs[res.RefID] = struct{}{}

		addr, err := ParseAddr(res.IP)
		if err != nil {
			return schemaErrorf("reserved.ips", "refId %q: bad address %q: %v", res.RefID, res.IP, err)
		}
		if owner, taken := committedIPs[addr]; taken {
			return schemaErrorf("reserved.ips", "refId %q reserves %s already committed to %q", res.RefID, res.IP, owner)
		}
	}

	return nil
}

// validateStaticRange checks that a network's static range is well formed:
// both endpoints parse, share an address family with each other and the
// subnet, fall inside the subnet, and start <= end.
func validateStaticRange(n Network) error {
	field := fmt.Sprintf("networks.%s.static_range", n.Name)

	prefix, err := netip.ParsePrefix(n.Subnet)
	if err != nil {
		return schemaErrorf("networks."+n.Name+".subnet", "bad subnet %q: %v", n.Subnet, err)
	}

	start, err := netip.ParseAddr(n.StaticRange.Start)
	if err != nil {
		return schemaErrorf(field, "bad start %q: %v", n.StaticRange.Start, err)
	}
	end, err := netip.ParseAddr(n.StaticRange.End)
	if err != nil {
		return schemaErrorf(field, "bad end %q: %v", n.StaticRange.End, err)
	}

	start, end = start.Unmap(), end.Unmap()
	if start.Is4() != end.Is4() {
		return schemaErrorf(field, "start %s and end %s are different address families", start, end)
	}
	if prefix.Addr().Unmap().Is4() != start.Is4() {
		return schemaErrorf(field, "range family does not match subnet %s", n.Subnet)
	}
	if start.Compare(end) > 0 {
		return schemaErrorf(field, "start %s is after end %s", start, end)
	}
	if !prefix.Contains(start) || !prefix.Contains(end) {
		return schemaErrorf(field, "range %s-%s is outside subnet %s", start, end, n.Subnet)
	}

	return nil
}

// ParseAddr parses an address that may carry a prefix length suffix.
// Inventory files mix bare addresses ("10.0.0.5") with prefixed ones
// ("10.0.0.5/24"); allocation only cares about the address.
func ParseAddr(s string) (netip.Addr, error) {
	if prefix, err := netip.ParsePrefix(s); err == nil {
		return prefix.Addr().Unmap(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, err
	}
	return addr.Unmap(), nil
}
