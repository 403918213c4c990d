package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/utafrali/BackOfficeGo/pkg/httputil"
)

var rateLimited = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "backoffice",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests refused with 429, by route",
	},
	[]string{"route"},
)

// RateLimitConfig is a token bucket per client. A non-positive Rate turns the
// limiter off.
type RateLimitConfig struct {
	Rate  float64 // tokens per second
	Burst int
	// IdleTTL drops the bucket of a client not seen for this long.
	IdleTTL time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type buckets struct {
	mu        sync.Mutex
	byKey     map[string]*bucket
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newBuckets(cfg RateLimitConfig) *buckets {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 3 * time.Minute
	}
	return &buckets{
		byKey: make(map[string]*bucket),
		limit: rate.Limit(cfg.Rate),
		burst: cfg.Burst,
		ttl:   cfg.IdleTTL,
		now:   time.Now,
	}
}

// allow takes a token for key. Idle buckets are swept at most once per ttl,
// on the request path.
func (b *buckets) allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if now.Sub(b.lastSweep) >= b.ttl {
		for k, v := range b.byKey {
			if now.Sub(v.lastSeen) > b.ttl {
				delete(b.byKey, k)
			}
		}
		b.lastSweep = now
	}

	v, ok := b.byKey[key]
	if !ok {
		v = &bucket{limiter: rate.NewLimiter(b.limit, b.burst)}
		b.byKey[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (b *buckets) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byKey)
}

// RateLimit refuses requests beyond cfg with 429 RATE_LIMITED. Clients are
// keyed by X-Terminal-ID, falling back to the remote address for callers
// that do not identify a till.
func RateLimit(cfg RateLimitConfig, log *slog.Logger) func(http.Handler) http.Handler {
	if cfg.Rate <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	store := newBuckets(cfg)
	retryAfter := strconv.Itoa(int(math.Ceil(1 / cfg.Rate)))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			if store.allow(key) {
				next.ServeHTTP(w, r)
				return
			}

			route := routePattern(r)
			rateLimited.WithLabelValues(route).Inc()
			log.WarnContext(r.Context(), "rate limit exceeded",
				slog.String("client", key),
				slog.String("route", route),
			)
			w.Header().Set("Retry-After", retryAfter)
			httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "RATE_LIMITED", Message: "too many requests"},
			})
		})
	}
}

func clientKey(r *http.Request) string {
	if id := r.Header.Get(TerminalIDHeader); id != "" {
		return "terminal:" + id
	}
	return "ip:" + remoteHost(r)
}
