package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"zaigate/zaigate/pkg/config"
	"zaigate/zaigate/pkg/proxy/types"
)

const rateLimitBuckets = 10

// bucket counts requests in one slice of the sliding window.
type bucket struct {
	start time.Time
	count int
}

// clientWindow tracks one client's request counts over the window using
// a ring of fixed-size buckets.
type clientWindow struct {
	buckets  []bucket
	lastSeen time.Time
}

// RateLimiter enforces a per-client sliding-window request limit.
// Clients are identified by API key when present, remote IP otherwise.
type RateLimiter struct {
	mu         sync.Mutex
	clients    map[string]*clientWindow
	limit      int
	window     time.Duration
	bucketSize time.Duration
	now        func() time.Time
}

// NewRateLimiter builds a limiter from cfg. The caller should skip
// installing the middleware when cfg.Enabled is false.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		clients:    make(map[string]*clientWindow),
		limit:      cfg.Requests,
		window:     window,
		bucketSize: window / rateLimitBuckets,
		now:        time.Now,
	}
}

// Handle wraps next with rate limiting. Rejected requests get a 429
// with Retry-After and an OpenAI-style error body.
func (rl *RateLimiter) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		allowed, remaining, retryAfter := rl.allow(key)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			resp := types.NewErrorResponse(
				"rate limit exceeded, slow down",
				types.ErrorTypeRateLimitExceeded,
				"",
				types.CodeRateLimitExceeded,
			)
			json.NewEncoder(w).Encode(resp) //nolint:errcheck
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allow records one request for key and reports whether it fits within
// the limit, how many requests remain, and how long until the oldest
// bucket expires.
func (rl *RateLimiter) allow(key string) (bool, int, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	cw, ok := rl.clients[key]
	if !ok {
		cw = &clientWindow{buckets: make([]bucket, 0, rateLimitBuckets)}
		rl.clients[key] = cw
	}
	cw.lastSeen = now

	rl.pruneLocked(cw, now)

	total := 0
	for _, b := range cw.buckets {
		total += b.count
	}

	if total >= rl.limit {
		retryAfter := time.Duration(0)
		if len(cw.buckets) > 0 {
			retryAfter = cw.buckets[0].start.Add(rl.window).Sub(now)
			if retryAfter < 0 {
				retryAfter = 0
			}
		}
		return false, 0, retryAfter
	}

	rl.addLocked(cw, now)

	remaining := rl.limit - total - 1
	if remaining < 0 {
		remaining = 0
	}
	return true, remaining, 0
}

// pruneLocked drops buckets that have slid out of the window and evicts
// idle clients. Caller must hold mu.
func (rl *RateLimiter) pruneLocked(cw *clientWindow, now time.Time) {
	cutoff := now.Add(-rl.window)
	kept := cw.buckets[:0]
	for _, b := range cw.buckets {
		if b.start.After(cutoff) {
			kept = append(kept, b)
		}
	}
	cw.buckets = kept

	if len(rl.clients) > 4096 {
		idle := now.Add(-2 * rl.window)
		for k, c := range rl.clients {
			if c.lastSeen.Before(idle) {
				delete(rl.clients, k)
			}
		}
	}
}

// addLocked increments the current bucket, creating it if the latest
// bucket is older than bucketSize. Caller must hold mu.
func (rl *RateLimiter) addLocked(cw *clientWindow, now time.Time) {
	if n := len(cw.buckets); n > 0 {
		last := &cw.buckets[n-1]
		if now.Sub(last.start) < rl.bucketSize {
			last.count++
			return
		}
	}
	cw.buckets = append(cw.buckets, bucket{start: now, count: 1})
}

// clientKey identifies the caller: a prefix of the API key when one is
// present, the remote IP otherwise. Full keys never land in the map.
func clientKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok && token != "" {
		return "key:" + keyPrefix(token)
	}
	if apiKey := r.Header.Get("x-api-key"); apiKey != "" {
		return "key:" + keyPrefix(apiKey)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func keyPrefix(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
