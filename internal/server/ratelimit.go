package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxTrackedClients = 10000
	clientIdleAfter   = 10 * time.Minute
)

// RateLimitMiddleware gives each client IP a token bucket of rps with the
// given burst. Paths in exempt bypass the limiter.
func RateLimitMiddleware(rps float64, burst int, exempt []string) Middleware {
	buckets := newBucketSet(rate.Limit(rps), burst)
	free := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		free[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := free[r.URL.Path]; !ok && !buckets.take(clientIP(r)) {
				RateLimited(w, "rate limit exceeded", r.URL.Path)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// bucketSet holds one limiter per client. Idle clients are evicted when the
// set grows past maxTrackedClients.
type bucketSet struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*bucket
}

func newBucketSet(limit rate.Limit, burst int) *bucketSet {
	return &bucketSet{limit: limit, burst: burst, clients: make(map[string]*bucket)}
}

func (s *bucketSet) take(client string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	b, ok := s.clients[client]
	if !ok {
		if len(s.clients) >= maxTrackedClients {
			s.evictIdle(now)
		}
		b = &bucket{lim: rate.NewLimiter(s.limit, s.burst)}
		s.clients[client] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// evictIdle must be called with s.mu held.
func (s *bucketSet) evictIdle(now time.Time) {
	for k, b := range s.clients {
		if now.Sub(b.seen) > clientIdleAfter {
			delete(s.clients, k)
		}
	}
}

// clientIP prefers the first X-Forwarded-For hop, since the service
// normally runs behind a proxy, and falls back to the peer address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
