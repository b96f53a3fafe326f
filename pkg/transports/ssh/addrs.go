package ssh

import (
	"context"
	"net/netip"
	"strings"
)

// InterfaceAddrs implements Transport. It reads the remote host's interface
// addresses via `ip -o addr show`, which prints one address per line:
//
//	2: eth0    inet 10.0.0.17/24 brd 10.0.0.255 scope global eth0 ...
//
// Loopback addresses are dropped; the caller matches the rest against the
// target network's subnet.
func (c *Client) InterfaceAddrs(ctx context.Context) ([]netip.Prefix, error) {
	stdout, _, err := c.ExecuteCommand(ctx, "ip -o addr show")
	if err != nil {
		return nil, err
	}
	return ParseIPAddrOutput(stdout), nil
}

// ParseIPAddrOutput extracts the address/prefix column from `ip -o addr
// show` output. Unparseable lines are skipped; the command's output is not
// under our control.
func ParseIPAddrOutput(out string) []netip.Prefix {
	var addrs []netip.Prefix
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		// idx, ifname, family, addr/prefix, ...
		if len(fields) < 4 {
			continue
		}
		if fields[2] != "inet" && fields[2] != "inet6" {
			continue
		}
		prefix, err := netip.ParsePrefix(fields[3])
		if err != nil {
			continue
		}
		if prefix.Addr().IsLoopback() {
			continue
		}
		addrs = append(addrs, prefix)
	}
	return addrs
}
