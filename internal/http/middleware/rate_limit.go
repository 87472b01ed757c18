package middleware

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/diagnosis/dutchville-accounts/internal/http/response"
	"github.com/diagnosis/dutchville-accounts/pkg/logger"
	"github.com/diagnosis/dutchville-accounts/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig defines rate limiting parameters
type RateLimitConfig struct {
	Requests       int                            // Max requests per window
	Window         time.Duration                  // Time window duration
	Route          string                         // Label for the rate limit metric
	TrustedProxies []netip.Prefix                 // Peers whose forwarded headers are believed
	KeyFunc        func(r *http.Request) []string // Function to generate rate limit keys
	SkipFunc       func(r *http.Request) bool     // Function to skip rate limiting
}

// RateLimiter counts requests per key in fixed Redis windows.
type RateLimiter struct {
	client  redis.Cmdable
	config  RateLimitConfig
	metrics *metrics.Metrics
	prefix  string
	timeout time.Duration
}

func NewRateLimiter(client redis.Cmdable, config RateLimitConfig, m *metrics.Metrics) *RateLimiter {
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	rl := &RateLimiter{
		client:  client,
		config:  config,
		metrics: m,
		prefix:  "dutchville:ratelimit:",
		timeout: 250 * time.Millisecond,
	}
	if rl.config.KeyFunc == nil {
		rl.config.KeyFunc = rl.clientIPKey
	}
	return rl
}

// Middleware returns the rate limiting middleware
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.config.Requests <= 0 || (rl.config.SkipFunc != nil && rl.config.SkipFunc(r)) {
				next.ServeHTTP(w, r)
				return
			}

			for _, key := range rl.config.KeyFunc(r) {
				if !rl.allow(r.Context(), key) {
					rl.metrics.RateLimited(rl.config.Route)
					response.RateLimit(w, response.MsgRateLimited)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// allow fails open: a Redis outage never blocks registration.
func (rl *RateLimiter) allow(ctx context.Context, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, rl.timeout)
	defer cancel()

	// Hash the key for privacy
	redisKey := fmt.Sprintf("%s%x", rl.prefix, sha256.Sum256([]byte(key)))

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := rl.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, redisKey)
		ttl = p.TTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "redis rate limiter error", "op", "incr", "error", err)
		return true
	}

	// Every counter must carry a TTL, or its client stays blocked forever.
	// A missing one is re-armed on the next hit, whichever hit that is.
	if ttl.Val() < 0 {
		if err := rl.client.Expire(ctx, redisKey, rl.config.Window).Err(); err != nil {
			logger.ErrorContext(ctx, "redis rate limiter error", "op", "expire", "error", err)
			return true
		}
	}

	return incr.Val() <= int64(rl.config.Requests)
}

func (rl *RateLimiter) clientIPKey(r *http.Request) []string {
	if ip := clientIP(r, rl.config.TrustedProxies); ip != "" {
		return []string{"ip:" + ip}
	}
	return nil
}

// ParseTrustedProxies accepts bare IPs and CIDR prefixes.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// clientIP keys on the TCP peer. X-Forwarded-For and X-Real-IP are only
// honoured when that peer is a trusted proxy; the client is then the
// rightmost forwarded hop that is not itself trusted.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peer = host
	}
	if !isTrusted(peer, trusted) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !isTrusted(hop, trusted) {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
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
