// ABOUTME: Tests for the per-IP rate limiter and client address extraction
// ABOUTME: Uses a tiny budget so the second request in a burst is refused

package site

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPRateLimiter_PerIP(t *testing.T) {
	rl := NewIPRateLimiter(1, 1, nil)
	defer rl.Close()

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "other clients keep their own budget")
}

func TestIPRateLimiter_DisabledIsNil(t *testing.T) {
	rl := NewIPRateLimiter(0, 5, nil)
	assert.Nil(t, rl)

	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("10.0.0.1"))
	}
	rl.Close()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	assert.NotNil(t, rl.Middleware(next))
}

func TestIPRateLimiter_CloseTwice(t *testing.T) {
	rl := NewIPRateLimiter(10, 0, nil)
	rl.Close()
	rl.Close()
}

func TestIPRateLimiter_Middleware(t *testing.T) {
	rl := NewIPRateLimiter(1, 1, nil)
	defer rl.Close()

	calls := 0
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, send().Code)

	rec := send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"ok":false,"error":"too_many_requests"}`, rec.Body.String())
	assert.Equal(t, 1, calls)
}

func TestIPRateLimiter_MiddlewareIgnoresForwardedFromUntrustedPeer(t *testing.T) {
	rl := NewIPRateLimiter(1, 1, NewClientIPResolver(nil))
	defer rl.Close()

	calls := 0
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.1:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("203.0.113.%d", i))
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, 1, calls)
}

func TestIPRateLimiter_MiddlewareKeysByClientBehindProxy(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	rl := NewIPRateLimiter(1, 1, NewClientIPResolver(proxies))
	defer rl.Close()

	calls := 0
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	send := func(client string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.2:4000"
		req.Header.Set("X-Forwarded-For", client)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("198.51.100.1"))
	assert.Equal(t, http.StatusOK, send("198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1"))
	assert.Equal(t, 2, calls)
}
