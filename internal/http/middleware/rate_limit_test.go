package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failFirstExpire makes the first EXPIRE sent through the client fail.
type failFirstExpire struct {
	fired atomic.Bool
}

func (h *failFirstExpire) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *failFirstExpire) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "expire" && h.fired.CompareAndSwap(false, true) {
			err := errors.New("expire rejected")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (h *failFirstExpire) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func newLimited(t *testing.T, cfg RateLimitConfig, hooks ...redis.Hook) (*miniredis.Miniredis, http.Handler) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	for _, h := range hooks {
		client.AddHook(h)
	}
	t.Cleanup(func() { client.Close() })

	if cfg.Window == 0 {
		cfg.Window = time.Minute
	}
	cfg.Route = "/register"
	rl := NewRateLimiter(client, cfg, nil)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusCreated) })
	return mr, rl.Middleware()(ok)
}

func post(h http.Handler, peer string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/register", nil)
	req.RemoteAddr = peer + ":5555"
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	mr, h := newLimited(t, RateLimitConfig{Requests: 2})

	assert.Equal(t, http.StatusCreated, post(h, "10.0.0.1").Code)
	assert.Equal(t, http.StatusCreated, post(h, "10.0.0.1").Code)

	rec := post(h, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Too many requests. Try again later."}`, rec.Body.String())

	// Other clients keep their own budget.
	assert.Equal(t, http.StatusCreated, post(h, "10.0.0.2").Code)

	// A new window resets the count.
	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusCreated, post(h, "10.0.0.1").Code)
}

func TestRateLimiter_RearmsLostExpiry(t *testing.T) {
	mr, h := newLimited(t, RateLimitConfig{Requests: 2}, &failFirstExpire{})

	assert.Equal(t, http.StatusCreated, post(h, "10.0.0.1").Code, "expiry failure fails open")
	assert.Equal(t, http.StatusCreated, post(h, "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, post(h, "10.0.0.1").Code)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	ttl := mr.TTL(keys[0])
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	mr.FastForward(24 * time.Hour)
	assert.Equal(t, http.StatusCreated, post(h, "10.0.0.1").Code, "the window ends even after a lost EXPIRE")
}

func TestRateLimiter_IgnoresForwardedHeadersFromUntrustedPeer(t *testing.T) {
	_, h := newLimited(t, RateLimitConfig{Requests: 2})

	admitted := 0
	for i := 0; i < 50; i++ {
		spoofed := fmt.Sprintf("1.2.3.%d", i)
		rec := post(h, "10.0.0.1", "X-Forwarded-For", spoofed, "X-Real-IP", spoofed)
		if rec.Code == http.StatusCreated {
			admitted++
		}
	}
	assert.Equal(t, 2, admitted)
}

func TestRateLimiter_TrustedProxyForwardsClientIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	_, h := newLimited(t, RateLimitConfig{Requests: 1, TrustedProxies: trusted})

	assert.Equal(t, http.StatusCreated, post(h, "10.0.0.1", "X-Forwarded-For", "203.0.113.9").Code)
	assert.Equal(t, http.StatusTooManyRequests, post(h, "10.0.0.2", "X-Forwarded-For", "203.0.113.9").Code)
	assert.Equal(t, http.StatusCreated, post(h, "10.0.0.1", "X-Forwarded-For", "203.0.113.10").Code)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	mr, h := newLimited(t, RateLimitConfig{Requests: 1})
	mr.Close()

	assert.Equal(t, http.StatusCreated, post(h, "10.0.0.1").Code)
	assert.Equal(t, http.StatusCreated, post(h, "10.0.0.1").Code)
}

func TestRateLimiter_Disabled(t *testing.T) {
	_, h := newLimited(t, RateLimitConfig{Requests: 0})
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusCreated, post(h, "10.0.0.1").Code)
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.7"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		peer    string
		xff     string
		realIP  string
		trusted []netip.Prefix
		want    string
	}{
		{name: "no proxies configured", peer: "198.51.100.1", xff: "1.1.1.1", realIP: "2.2.2.2", want: "198.51.100.1"},
		{name: "untrusted peer", peer: "198.51.100.1", xff: "1.1.1.1", trusted: trusted, want: "198.51.100.1"},
		{name: "trusted peer single hop", peer: "10.1.2.3", xff: "203.0.113.9", trusted: trusted, want: "203.0.113.9"},
		{name: "spoofed leftmost entry", peer: "10.1.2.3", xff: "6.6.6.6, 203.0.113.9", trusted: trusted, want: "203.0.113.9"},
		{name: "chained trusted proxies", peer: "192.0.2.7", xff: "203.0.113.9, 10.9.9.9", trusted: trusted, want: "203.0.113.9"},
		{name: "real ip from trusted peer", peer: "10.1.2.3", realIP: "203.0.113.5", trusted: trusted, want: "203.0.113.5"},
		{name: "trusted peer without headers", peer: "10.1.2.3", trusted: trusted, want: "10.1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.RemoteAddr = tt.peer + ":1234"
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.trusted))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	t.Parallel()

	got, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.7", "::1"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[1].Contains(netip.MustParseAddr("192.0.2.7")))
	assert.False(t, got[1].Contains(netip.MustParseAddr("192.0.2.8")))

	_, err = ParseTrustedProxies([]string{"lb.internal"})
	assert.Error(t, err)
}
