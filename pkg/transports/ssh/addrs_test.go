package ssh

import (
	"net/netip"
	"testing"
)

const ipAddrOutput = `1: lo    inet 127.0.0.1/8 scope host lo\       valid_lft forever preferred_lft forever
1: lo    inet6 ::1/128 scope host \       valid_lft forever preferred_lft forever
2: eth0    inet 10.0.0.17/24 brd 10.0.0.255 scope global eth0\       valid_lft forever preferred_lft forever
2: eth0    inet6 fe80::5054:ff:fe12:3456/64 scope link \       valid_lft forever preferred_lft forever
3: eth1    inet 192.168.1.5/24 brd 192.168.1.255 scope global dynamic eth1\       valid_lft 86000sec preferred_lft 86000sec
garbage line that does not parse
4: eth2    inet not-an-address scope global eth2`

func TestParseIPAddrOutput(t *testing.T) {
	addrs := ParseIPAddrOutput(ipAddrOutput)

	want := []netip.Prefix{
		netip.MustParsePrefix("10.0.0.17/24"),
		netip.MustParsePrefix("fe80::5054:ff:fe12:3456/64"),
		netip.MustParsePrefix("192.168.1.5/24"),
	}
	if len(addrs) != len(want) {
		t.Fatalf("got %d addrs %v, want %d", len(addrs), addrs, len(want))
	}
	for i, prefix := range want {
		if addrs[i] != prefix {
			t.Errorf("addrs[%d] = %s, want %s", i, addrs[i], prefix)
		}
	}
}

func TestParseIPAddrOutputEmpty(t *testing.T) {
	if addrs := ParseIPAddrOutput(""); len(addrs) != 0 {
		t.Errorf("empty output yielded %v", addrs)
	}
}
