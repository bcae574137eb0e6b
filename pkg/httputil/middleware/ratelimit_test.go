package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimit(t *testing.T) {
	handler := RateLimit(RateLimitOptions{RequestsPerMinute: 2})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1235"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1236"))

	// separate bucket per client
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1234"))
}

func TestRateLimitDisabled(t *testing.T) {
	handler := RateLimit(RateLimitOptions{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 100; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestRateLimitResponse(t *testing.T) {
	handler := RateLimit(RateLimitOptions{RequestsPerMinute: 1})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"Rate limit exceeded","code":429}`, rr.Body.String())
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	handler := RateLimit(RateLimitOptions{RequestsPerMinute: 2})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "198.51.100.4:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{200, 200, 429, 429}, codes)
}

func TestRateLimitTrustedProxy(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	handler := RateLimit(RateLimitOptions{RequestsPerMinute: 1, TrustedProxies: trusted})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(client string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.1.2.3:443"
		req.Header.Set("X-Forwarded-For", client)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, do("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("203.0.113.1"))
	assert.Equal(t, http.StatusOK, do("203.0.113.2"), "each client behind the proxy has its own bucket")
}

func TestClientIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.50"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		remote  string
		fwd     string
		trusted []netip.Prefix
		want    string
	}{
		{name: "remote addr", remote: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "forwarded without trusted proxies", remote: "192.0.2.1:5555", fwd: "203.0.113.7", want: "192.0.2.1"},
		{name: "forwarded from untrusted peer", remote: "192.0.2.1:5555", fwd: "203.0.113.7", trusted: trusted, want: "192.0.2.1"},
		{name: "forwarded from trusted peer", remote: "10.0.0.1:5555", fwd: "203.0.113.7", trusted: trusted, want: "203.0.113.7"},
		{name: "spoofed left hop is skipped", remote: "10.0.0.1:5555", fwd: "1.1.1.1, 203.0.113.7, 10.2.2.2", trusted: trusted, want: "203.0.113.7"},
		{name: "single trusted address", remote: "192.0.2.50:80", fwd: "203.0.113.9", trusted: trusted, want: "203.0.113.9"},
		{name: "all hops trusted", remote: "10.0.0.1:5555", fwd: "10.3.3.3", trusted: trusted, want: "10.3.3.3"},
		{name: "no port", remote: "192.0.2.9", want: "192.0.2.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.fwd != "" {
				req.Header.Set("X-Forwarded-For", tt.fwd)
			}
			assert.Equal(t, tt.want, ClientIP(req, tt.trusted...))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := ParseTrustedProxies([]string{" 10.0.0.0/8 ", "", "192.0.2.7", "::1"})
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.7/32"),
		netip.MustParsePrefix("::1/128"),
	}, got)

	_, err = ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
}
