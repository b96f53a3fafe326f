package alloc

import (
	"net/netip"

	"github.com/proxforge/proxforge/pkg/inventory"
)

// NextIP returns the lowest free address in the named network's static
// range, carrying the subnet's prefix length.
//
// The used set is the union of the network's gateway and DNS addresses,
// every committed host interface on that network, and every ledger IP
// reservation. Addresses are compared in netip order, which is the single
// unsigned-integer ordering of the address family (32-bit for IPv4, 128-bit
// for IPv6), so the scan is a plain linear walk over [start,end].
func NextIP(networkName string, inv *inventory.Inventory) (netip.Prefix, error) {
	network, ok := inv.Network(networkName)
	if !ok {
		return netip.Prefix{}, newError(CodeNetworkNotFound, networkName, "network is not defined in the inventory")
	}

	subnet, err := netip.ParsePrefix(network.Subnet)
	if err != nil {
		return netip.Prefix{}, newError(CodeInvalidRange, networkName, "bad subnet %q: %v", network.Subnet, err)
	}

	start, err := netip.ParseAddr(network.StaticRange.Start)
	if err != nil {
		return netip.Prefix{}, newError(CodeInvalidRange, networkName, "bad range start %q: %v", network.StaticRange.Start, err)
	}
	end, err := netip.ParseAddr(network.StaticRange.End)
	if err != nil {
		return netip.Prefix{}, newError(CodeInvalidRange, networkName, "bad range end %q: %v", network.StaticRange.End, err)
	}

	start, end = start.Unmap(), end.Unmap()
	if start.Is4() != end.Is4() {
		return netip.Prefix{}, newError(CodeInvalidRange, networkName, "range endpoints %s and %s are different address families", start, end)
	}
	if start.Compare(end) > 0 {
		return netip.Prefix{}, newError(CodeInvalidRange, networkName, "range start %s is after end %s", start, end)
	}

	used, err := usedAddrs(network, inv)
	if err != nil {
		return netip.Prefix{}, err
	}

	for addr := start; addr.Compare(end) <= 0; addr = addr.Next() {
		if _, taken := used[addr]; !taken {
			return netip.PrefixFrom(addr, subnet.Bits()), nil
		}
	}

	return netip.Prefix{}, newError(CodeNoCapacity, networkName, "all addresses in [%s,%s] are in use", start, end)
}

// usedAddrs collects every address on the network that must not be handed
// out: infrastructure addresses, committed host interfaces, and ledger
// reservations.
func usedAddrs(network inventory.Network, inv *inventory.Inventory) (map[netip.Addr]struct{}, error) {
	used := make(map[netip.Addr]struct{})

	for _, infra := range []string{network.Gateway, network.DNS} {
		addr, err := inventory.ParseAddr(infra)
		if err != nil {
			return nil, newError(CodeInvalidRange, network.Name, "bad infrastructure address %q: %v", infra, err)
		}
		used[addr] = struct{}{}
	}

	for _, h := range inv.Hosts {
		for _, iface := range h.Interfaces {
			if iface.Network != network.Name {
				continue
			}
			addr, err := inventory.ParseAddr(iface.IP)
			if err != nil {
				// Load validation catches this; a hand-built snapshot may not.
				return nil, newError(CodeInvalidRange, network.Name, "host %q has bad address %q: %v", h.Name, iface.IP, err)
			}
			used[addr] = struct{}{}
		}
	}

	for _, res := range inv.Reserved.IPs {
		addr, err := inventory.ParseAddr(res.IP)
		if err != nil {
			return nil, newError(CodeInvalidRange, network.Name, "reservation %q has bad address %q: %v", res.RefID, res.IP, err)
		}
		used[addr] = struct{}{}
	}

	return used, nil
}
