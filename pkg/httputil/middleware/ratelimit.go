package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/edgeflare/rowgate/pkg/httputil"
	"golang.org/x/time/rate"
)

// RateLimitOptions configures RateLimit.
type RateLimitOptions struct {
	// KeyFunc identifies the client. Defaults to ClientIP with TrustedProxies.
	KeyFunc func(r *http.Request) string
	// TrustedProxies are the peers whose X-Forwarded-For header is believed.
	TrustedProxies []netip.Prefix
	// RequestsPerMinute is the sustained rate per client. Values <= 0 disable limiting.
	RequestsPerMinute int
	// Burst defaults to RequestsPerMinute.
	Burst int
	// IdleTTL is how long an idle client's limiter is kept. Defaults to 10 minutes.
	IdleTTL time.Duration
}

// RateLimit enforces a per-client token bucket and answers 429 when it is exhausted.
func RateLimit(opts RateLimitOptions) func(http.Handler) http.Handler {
	if opts.RequestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = func(r *http.Request) string {
			return ClientIP(r, opts.TrustedProxies...)
		}
	}
	if opts.Burst <= 0 {
		opts.Burst = opts.RequestsPerMinute
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}

	limit := rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	limiters := NewCache[*rate.Limiter]()

	var (
		mu          sync.Mutex
		lastCleanup = time.Now()
	)
	cleanup := func() {
		mu.Lock()
		defer mu.Unlock()
		if time.Since(lastCleanup) < opts.IdleTTL {
			return
		}
		lastCleanup = time.Now()
		limiters.CleanupExpired()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cleanup()

			limiter := limiters.GetOrCreate(opts.KeyFunc(r), opts.IdleTTL, func() *rate.Limiter {
				return rate.NewLimiter(limit, opts.Burst)
			})
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "60")
				httputil.WriteError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of RemoteAddr. When that peer is one of trusted,
// X-Forwarded-For is walked from the right and the first untrusted hop is returned.
func ClientIP(r *http.Request, trusted ...netip.Prefix) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if len(trusted) == 0 || !isTrusted(host, trusted) {
		return host
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !isTrusted(hop, trusted) {
			return hop
		}
		host = hop
	}
	return host
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ParseTrustedProxies parses IP addresses and CIDR ranges.
func ParseTrustedProxies(values []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}
