package authgate

import (
	"net"
	"strings"

	"github.com/smartly/bridge/internal/config"
)

// ResolveSourceIP implements the three trust_proxy_mode policies.
func ResolveSourceIP(mode config.TrustProxyMode, directPeer string, xForwardedFor string, allowedCIDRs []*net.IPNet) string {
	switch mode {
	case config.TrustProxyNever:
		return directPeer
	case config.TrustProxyAlways:
		if v := firstForwardedFor(xForwardedFor); v != "" {
			return v
		}
		return directPeer
	case config.TrustProxyAuto:
		if isPrivateOrLoopback(directPeer) && anyPublicCIDR(allowedCIDRs) {
			if v := firstForwardedFor(xForwardedFor); v != "" {
				return v
			}
		}
		return directPeer
	default:
		return directPeer
	}
}

func firstForwardedFor(xff string) string {
	if xff == "" {
		return ""
	}
	parts := strings.Split(xff, ",")
	return strings.TrimSpace(parts[0])
}

func isPrivateOrLoopback(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast()
}

func anyPublicCIDR(nets []*net.IPNet) bool {
	for _, n := range nets {
		if !n.IP.IsPrivate() && !n.IP.IsLoopback() && !n.IP.IsLinkLocalUnicast() {
			return true
		}
	}
	return false
}

// InAnyCIDR reports whether ip falls inside at least one of nets. An empty
// nets list means "no CIDR restriction configured" and the caller should
// treat that as pass: an empty allow-list is not a CIDR restriction.
func InAnyCIDR(addr string, nets []*net.IPNet) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
