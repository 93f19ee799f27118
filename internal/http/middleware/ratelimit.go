package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Entries idle longer than this are dropped on the next sweep so the map
// does not grow with every address that ever connected.
const staleAfter = 5 * time.Minute

// Throttle caps the request rate per client IP. Each address gets its own
// token bucket refilled at the configured requests-per-minute budget.
type Throttle struct {
	fill  rate.Limit
	burst int

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewThrottle builds a per-IP throttle from a requests-per-minute budget.
// A non-positive budget disables throttling entirely.
func NewThrottle(requestsPerMinute int) *Throttle {
	if requestsPerMinute <= 0 {
		return nil
	}
	// Roughly ten seconds of budget may arrive at once before refusal.
	burst := requestsPerMinute / 6
	if burst < 1 {
		burst = 1
	}
	return &Throttle{
		fill:      rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:     burst,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// Handler returns the gin middleware. A nil Throttle passes every request.
func (t *Throttle) Handler() gin.HandlerFunc {
	if t == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if !t.acquire(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Request rate exceeded, retry later.",
			})
			return
		}
		c.Next()
	}
}

func (t *Throttle) acquire(addr string) bool {
	now := time.Now()

	t.mu.Lock()
	if now.Sub(t.lastSweep) > staleAfter {
		for key, b := range t.buckets {
			if now.Sub(b.lastSeen) > staleAfter {
				delete(t.buckets, key)
			}
		}
		t.lastSweep = now
	}
	b, ok := t.buckets[addr]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(t.fill, t.burst)}
		t.buckets[addr] = b
	}
	b.lastSeen = now
	t.mu.Unlock()

	return b.limiter.Allow()
}
