package authhttp

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	redisstore "github.com/open-rails/emailchange/storage/redis"
)

// RateLimiter is a minimal interface used by adapters.
type RateLimiter interface {
	AllowNamed(bucket string, key string) (bool, error)
}

// Bucket names used by the email change endpoints.
const (
	RLEmailChangeRequest = "emailchange_request"
	RLEmailChangeResend  = "emailchange_resend"
	RLEmailChangeConfirm = "emailchange_confirm"
	RLEmailChangeCommit  = "emailchange_commit"
	RLEmailChangeStatus  = "emailchange_status"
	RLEmailChangeCancel  = "emailchange_cancel"
	RLEmailChangeRepair  = "emailchange_repair"
	RLReauthenticate     = "emailchange_reauthenticate"
)

// Limit configures a named rate limit bucket.
type Limit struct {
	Limit  int
	Window time.Duration
}

// DefaultRateLimits returns the built-in per-endpoint limits, enforced per
// client key (IP or principal).
func DefaultRateLimits() map[string]Limit {
	return map[string]Limit{
		"default":            {Limit: 120, Window: time.Minute},
		RLEmailChangeRequest: {Limit: 10, Window: time.Hour},
		RLEmailChangeResend:  {Limit: 6, Window: 10 * time.Minute},
		RLEmailChangeConfirm: {Limit: 30, Window: 10 * time.Minute},
		RLEmailChangeCommit:  {Limit: 30, Window: 10 * time.Minute},
		RLEmailChangeStatus:  {Limit: 120, Window: time.Minute},
		RLEmailChangeCancel:  {Limit: 30, Window: 10 * time.Minute},
		RLEmailChangeRepair:  {Limit: 10, Window: 10 * time.Minute},
		RLReauthenticate:     {Limit: 10, Window: 10 * time.Minute},
	}
}

// RedisLimits converts limits for redisstore.RateLimiter.
func RedisLimits(limits map[string]Limit) map[string]redisstore.Limit {
	out := make(map[string]redisstore.Limit, len(limits))
	for k, v := range limits {
		out[k] = redisstore.Limit{Limit: v.Limit, Window: v.Window}
	}
	return out
}

// MemoryLimiter is a token bucket limiter per key. It is only suitable for a
// single process.
type MemoryLimiter struct {
	mu       sync.Mutex
	limits   map[string]Limit
	limiters map[string]*rate.Limiter
}

func NewMemoryLimiter(limits map[string]Limit) *MemoryLimiter {
	return &MemoryLimiter{limits: limits, limiters: make(map[string]*rate.Limiter)}
}

func (m *MemoryLimiter) AllowNamed(bucket, key string) (bool, error) {
	l, ok := m.limits[bucket]
	if !ok {
		l = m.limits["default"]
	}
	if l.Limit <= 0 || l.Window <= 0 {
		return true, nil
	}
	m.mu.Lock()
	lim, ok := m.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.Window/time.Duration(l.Limit)), l.Limit)
		m.limiters[key] = lim
	}
	m.mu.Unlock()
	return lim.Allow(), nil
}

// ClientIPFunc determines the client IP used for rate limiting.
//
// Returning an empty string means "unknown" and causes rate limiting to fail open.
type ClientIPFunc func(r *http.Request) string

// DefaultClientIP uses RemoteAddr when it is a public address and fails open
// otherwise, so a reverse proxy is not limited as a single client.
func DefaultClientIP() ClientIPFunc {
	return func(r *http.Request) string {
		a, ok := remoteAddr(r)
		if ok && isPublicAddr(a) {
			return a.String()
		}
		return ""
	}
}

// ClientIPFromForwardedHeaders trusts CF-Connecting-IP and the left-most
// X-Forwarded-For entry only when the immediate peer is in trustedProxies.
func ClientIPFromForwardedHeaders(trustedProxies []netip.Prefix) ClientIPFunc {
	fallback := DefaultClientIP()
	return func(r *http.Request) string {
		peer, ok := remoteAddr(r)
		if !ok {
			return ""
		}
		for _, p := range trustedProxies {
			if !p.Contains(peer) {
				continue
			}
			for _, v := range []string{r.Header.Get("CF-Connecting-IP"), firstForwarded(r.Header.Get("X-Forwarded-For"))} {
				if a, err := netip.ParseAddr(strings.TrimSpace(v)); err == nil && isPublicAddr(a) {
					return a.String()
				}
			}
			break
		}
		return fallback(r)
	}
}

func firstForwarded(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		return v[:i]
	}
	return v
}

func remoteAddr(r *http.Request) (netip.Addr, bool) {
	if r == nil || r.RemoteAddr == "" {
		return netip.Addr{}, false
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil && h != "" {
		host = h
	}
	a, err := netip.ParseAddr(host)
	return a, err == nil
}

func isPublicAddr(a netip.Addr) bool {
	if !a.IsValid() {
		return false
	}
	return !(a.IsLoopback() || a.IsPrivate() || a.IsLinkLocalMulticast() || a.IsLinkLocalUnicast() ||
		a.IsMulticast() || a.IsUnspecified())
}
