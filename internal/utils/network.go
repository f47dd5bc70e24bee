package utils

import (
	"net"
	"net/netip"
	"strings"
)

// cgnat is the shared address space (RFC 6598) used by carrier-grade NAT
// and by overlay VPNs such as Tailscale and Cloudflare WARP.
var cgnat = netip.MustParsePrefix("100.64.0.0/10")

// tunnelNames are interface name fragments of VPN and tunnel adapters.
var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp", "utun"}

// ShouldForceRelay reports whether the host looks to be behind a VPN or
// CGNAT, where direct peer-to-peer paths rarely work and TURN should be
// forced.
func ShouldForceRelay() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		if restrictive(iface.Name, addrs) {
			return true
		}
	}
	return false
}

// restrictive reports whether an up, non-loopback interface is a tunnel
// or carries a CGNAT address.
func restrictive(name string, addrs []net.Addr) bool {
	lower := strings.ToLower(name)
	for _, frag := range tunnelNames {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if addr, ok := netip.AddrFromSlice(ip); ok && cgnat.Contains(addr.Unmap()) {
			return true
		}
	}
	return false
}
