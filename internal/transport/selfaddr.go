package transport

import (
	"fmt"
	"net"
)

// preferredInterfaces is checked in order; the first one present with a
// usable IPv4 address wins, matching _mq_selfaddr's "eth0, falling back
// to wlan0" preference.
var preferredInterfaces = []string{"eth0", "wlan0"}

// SelfAddr discovers this host's dialable "tcp://host:port" address by
// preferring eth0, then wlan0, matching the original runtime's
// getifaddrs-based interface scan. Unlike the original (which aborts the
// process if neither interface exists), this returns a SelfAddressError
// so the caller can decide how to fail.
func SelfAddr(port int) (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", &SelfAddressError{Reason: err.Error()}
	}
	byName := make(map[string]net.Interface, len(ifaces))
	for _, ifc := range ifaces {
		byName[ifc.Name] = ifc
	}

	for _, name := range preferredInterfaces {
		ifc, ok := byName[name]
		if !ok {
			continue
		}
		ip, ok := firstIPv4(ifc)
		if !ok {
			continue
		}
		return fmt.Sprintf("tcp://%s:%d", ip, port), nil
	}
	return "", &SelfAddressError{Reason: "neither eth0 nor wlan0 has a usable IPv4 address"}
}

func firstIPv4(ifc net.Interface) (string, bool) {
	addrs, err := ifc.Addrs()
	if err != nil {
		return "", false
	}
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() {
			continue
		}
		if v4 := ip.To4(); v4 != nil {
			return v4.String(), true
		}
	}
	return "", false
}
