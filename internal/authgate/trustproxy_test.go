package authgate

import (
	"net"
	"testing"

	"github.com/smartly/bridge/internal/config"
	"github.com/stretchr/testify/assert"
)

func parseCIDRs(t *testing.T, cidrs ...string) []*net.IPNet {
	t.Helper()
	var out []*net.IPNet
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		assert.NoError(t, err)
		out = append(out, n)
	}
	return out
}

func TestResolveSourceIPNever(t *testing.T) {
	ip := ResolveSourceIP(config.TrustProxyNever, "10.0.0.5", "1.2.3.4", nil)
	assert.Equal(t, "10.0.0.5", ip)
}

func TestResolveSourceIPAlways(t *testing.T) {
	ip := ResolveSourceIP(config.TrustProxyAlways, "10.0.0.5", "1.2.3.4, 5.6.7.8", nil)
	assert.Equal(t, "1.2.3.4", ip)

	ip = ResolveSourceIP(config.TrustProxyAlways, "10.0.0.5", "", nil)
	assert.Equal(t, "10.0.0.5", ip)
}

func TestResolveSourceIPAutoTrustsOnlyWhenPrivatePeerAndPublicCIDR(t *testing.T) {
	publicCIDRs := parseCIDRs(t, "203.0.113.0/24")
	privateCIDRs := parseCIDRs(t, "10.0.0.0/8")

	// private peer + a public allowed CIDR => trust XFF
	ip := ResolveSourceIP(config.TrustProxyAuto, "192.168.1.1", "1.2.3.4", publicCIDRs)
	assert.Equal(t, "1.2.3.4", ip)

	// public peer => never trust XFF regardless of CIDR config
	ip = ResolveSourceIP(config.TrustProxyAuto, "203.0.113.9", "1.2.3.4", publicCIDRs)
	assert.Equal(t, "203.0.113.9", ip)

	// private peer but only private CIDRs configured => don't trust XFF
	ip = ResolveSourceIP(config.TrustProxyAuto, "192.168.1.1", "1.2.3.4", privateCIDRs)
	assert.Equal(t, "192.168.1.1", ip)
}

func TestInAnyCIDR(t *testing.T) {
	nets := parseCIDRs(t, "192.168.0.0/16")
	assert.True(t, InAnyCIDR("192.168.1.5", nets))
	assert.False(t, InAnyCIDR("10.0.0.1", nets))
	assert.False(t, InAnyCIDR("not-an-ip", nets))
}
