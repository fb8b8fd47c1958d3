// ABOUTME: Tests for client address resolution behind trusted proxies
// ABOUTME: Forwarded headers from peers outside the trusted prefixes are ignored

package site

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIPResolver(t *testing.T) {
	resolver := NewClientIPResolver([]netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("fd00::/8"),
	})

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"peer address", "192.0.2.1:1234", nil, "192.0.2.1"},
		{"peer without port", "192.0.2.1", nil, "192.0.2.1"},
		{"ipv6 peer", "[2001:db8::1]:443", nil, "2001:db8::1"},
		{"untrusted peer forwarded", "192.0.2.1:1234", map[string]string{"X-Forwarded-For": "203.0.113.9"}, "192.0.2.1"},
		{"untrusted peer real ip", "192.0.2.1:1234", map[string]string{"X-Real-IP": "203.0.113.9"}, "192.0.2.1"},
		{"trusted chain", "10.0.0.1:80", map[string]string{"X-Forwarded-For": " 203.0.113.9 , 10.0.0.7"}, "203.0.113.9"},
		{"spoofed leftmost hop", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.9"}, "203.0.113.9"},
		{"all hops trusted", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "10.9.9.9, 10.0.0.7"}, "10.9.9.9"},
		{"malformed hop", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.9, not-an-ip"}, "10.0.0.1"},
		{"trusted real ip", "10.0.0.1:80", map[string]string{"X-Real-IP": "203.0.113.10"}, "203.0.113.10"},
		{"trusted bad real ip", "10.0.0.1:80", map[string]string{"X-Real-IP": "somewhere"}, "10.0.0.1"},
		{"forwarded wins over real ip", "10.0.0.1:80", map[string]string{
			"X-Forwarded-For": "203.0.113.11",
			"X-Real-IP":       "203.0.113.12",
		}, "203.0.113.11"},
		{"trusted ipv6 proxy", "[fd00::1]:443", map[string]string{"X-Forwarded-For": "2001:db8::5"}, "2001:db8::5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, resolver.ClientIP(req))
		})
	}
}

func TestClientIPResolver_NilTrustsNothing(t *testing.T) {
	var resolver *ClientIPResolver

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:9000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")

	assert.Equal(t, "127.0.0.1", resolver.ClientIP(req))
}
