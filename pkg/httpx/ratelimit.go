package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/wateroflife/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig is a token bucket: Requests per Window, refilled evenly,
// with up to Burst spent at once.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Burst    int
}

var (
	// AuthLimit guards the OIDC login and callback endpoints.
	AuthLimit = RateLimitConfig{Requests: 20, Window: time.Minute, Burst: 10}

	// APILimit guards authenticated API calls.
	APILimit = RateLimitConfig{Requests: 120, Window: time.Minute, Burst: 60}
)

// KeyExtractor picks the bucket a request is charged to. An empty key
// bypasses the limiter.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor uses the first X-Forwarded-For hop, then X-Real-IP, then
// the peer address.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SubjectKeyExtractor charges the authenticated subject, falling back to IP.
func SubjectKeyExtractor(r *http.Request) string {
	if sub, ok := SubjectFromContext(r.Context()); ok {
		return "sub:" + sub
	}
	return "ip:" + IPKeyExtractor(r)
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterSet struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idle    time.Duration
	swept   time.Time
}

func (s *limiterSet) allow(key string, now time.Time) (bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.swept) > s.idle {
		for k, b := range s.buckets {
			if now.Sub(b.lastSeen) > s.idle {
				delete(s.buckets, k)
			}
		}
		s.swept = now
	}

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.buckets[key] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// RateLimit returns middleware enforcing cfg per key.
func RateLimit(cfg RateLimitConfig, key KeyExtractor) Middleware {
	set := &limiterSet{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(float64(cfg.Requests) / cfg.Window.Seconds()),
		burst:   cfg.Burst,
		idle:    max(cfg.Window, 5*time.Minute),
		swept:   time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			ok, delay := set.allow(k, time.Now())
			if !ok {
				retryAfter := max(int(delay.Round(time.Second).Seconds()), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				slogx.FromContext(r.Context()).Warn("rate limit exceeded",
					"path", r.URL.Path,
					"retry_after", retryAfter,
				)
				WriteError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP limits by client address.
func RateLimitByIP(cfg RateLimitConfig) Middleware {
	return RateLimit(cfg, IPKeyExtractor)
}

// RateLimitBySubject limits by authenticated subject.
func RateLimitBySubject(cfg RateLimitConfig) Middleware {
	return RateLimit(cfg, SubjectKeyExtractor)
}
