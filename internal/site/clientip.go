// ABOUTME: Client address resolution that honors forwarded headers only from trusted proxies
// ABOUTME: The result keys the rate limiters and is recorded on sessions and audit rows

package site

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIPResolver picks the address a request should be attributed to.
// X-Forwarded-For and X-Real-IP are read only when the TCP peer is inside
// one of the trusted prefixes. A nil resolver trusts nothing.
type ClientIPResolver struct {
	trusted []netip.Prefix
}

// NewClientIPResolver creates a resolver trusting the given proxy prefixes.
func NewClientIPResolver(trusted []netip.Prefix) *ClientIPResolver {
	return &ClientIPResolver{trusted: trusted}
}

// ClientIP returns the client address for r.
//
// From a trusted peer, X-Forwarded-For is walked right to left and the first
// hop outside the trusted prefixes wins. When every hop is trusted the
// leftmost one is used. A malformed hop stops the walk and the peer is used.
func (c *ClientIPResolver) ClientIP(r *http.Request) string {
	peer := peerHost(r.RemoteAddr)
	if !c.isTrusted(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				return peer
			}
			if i == 0 || !c.isTrustedAddr(addr) {
				return addr.Unmap().String()
			}
		}
	}

	if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return addr.Unmap().String()
	}
	return peer
}

func (c *ClientIPResolver) isTrusted(host string) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return c.isTrustedAddr(addr)
}

func (c *ClientIPResolver) isTrustedAddr(addr netip.Addr) bool {
	if c == nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range c.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// peerHost strips the port from a RemoteAddr.
func peerHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
