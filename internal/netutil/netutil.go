// Package netutil enumerates local network interfaces so the CLI can
// supply a broker its bind address without the caller having to already
// know it. It is a pure function over net.Interfaces()/Interface.Addrs(),
// and stdlib-only: no example repo in the pack wraps interface enumeration
// in a third-party library, so there is nothing to adopt here.
package netutil

import (
	"net"
	"strings"
)

// IPVersion filters EnumerateLocalAddrs by address family.
type IPVersion int

const (
	// AnyVersion matches both IPv4 and IPv6 addresses.
	AnyVersion IPVersion = iota
	IPv4
	IPv6
)

// Address is one discovered interface address.
type Address struct {
	Interface string
	IP        string
}

// EnumerateLocalAddrs lists non-loopback addresses across all local
// interfaces, filtered by version and, if prefix is non-empty, by a
// leading-octets string match (e.g. "10.0").
func EnumerateLocalAddrs(version IPVersion, prefix string) ([]Address, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []Address
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() {
				continue
			}

			ip4 := ipNet.IP.To4()
			switch version {
			case IPv4:
				if ip4 == nil {
					continue
				}
			case IPv6:
				if ip4 != nil {
					continue
				}
			}

			ipStr := ipNet.IP.String()
			if prefix != "" && !strings.HasPrefix(ipStr, prefix) {
				continue
			}

			out = append(out, Address{Interface: iface.Name, IP: ipStr})
		}
	}
	return out, nil
}
