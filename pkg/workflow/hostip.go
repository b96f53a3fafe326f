package workflow

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/proxforge/proxforge/pkg/config"
	sshtransport "github.com/proxforge/proxforge/pkg/transports/ssh"
)

// LocalInterfaceAddrs returns the machine's own interface addresses,
// loopback excluded. Used for the host:ip token when the build runs locally.
func LocalInterfaceAddrs() ([]netip.Prefix, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	var addrs []netip.Prefix
	for _, iface := range ifaces {
		ifaceAddrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range ifaceAddrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			addr, ok := netip.AddrFromSlice(ipNet.IP)
			if !ok {
				continue
			}
			addr = addr.Unmap()
			if addr.IsLoopback() {
				continue
			}
			bits, _ := ipNet.Mask.Size()
			addrs = append(addrs, netip.PrefixFrom(addr, bits))
		}
	}
	return addrs, nil
}

// buildHostAddrs returns the interface addresses of the machine the build
// runs on: the remote build host over SSH, or this machine.
func (w *Workflow) buildHostAddrs(ctx context.Context, spec config.BuildHostSpec) ([]netip.Prefix, error) {
	if !spec.Remote() {
		return LocalInterfaceAddrs()
	}

	cfg := sshtransport.DefaultConfig(spec.Host, spec.User)
	if spec.KeyPath != "" {
		cfg.PrivateKeyPath = spec.KeyPath
	}

	client, err := sshtransport.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("build host %s: %w", spec.Host, err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("build host %s: %w", spec.Host, err)
	}
	defer client.Close()

	return client.InterfaceAddrs(ctx)
}
