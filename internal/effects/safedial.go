package effects

import (
	"fmt"
	"net"
	"syscall"
	"time"
)

// safeDialer refuses connections to loopback, private and link-local
// addresses. The check runs after DNS resolution, on the address actually
// being dialled.
func safeDialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
		Control: func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return fmt.Errorf("failed to parse dial address %q: %w", address, err)
			}
			ip := net.ParseIP(host)
			if ip == nil {
				return fmt.Errorf("failed to parse remote IP for %q", address)
			}
			if blockedIP(ip) {
				return fmt.Errorf("access to private IP %s is denied", ip)
			}
			return nil
		},
	}
}

func blockedIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}
