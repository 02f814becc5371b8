package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Limiter counts requests per key over a sliding window. A limit of zero or
// less disables it. Close stops the background sweep.
type Limiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func NewLimiter(limit int, window time.Duration) *Limiter {
	l := &Limiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	if limit > 0 && window > 0 {
		go l.sweepEvery(window)
	}
	return l
}

// Allow records a hit for key. When the key is over its limit it returns
// false and how long until the oldest hit leaves the window.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if l.limit <= 0 {
		return true, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	valid := live(l.hits[key], now.Add(-l.window))
	if len(valid) >= l.limit {
		l.hits[key] = valid
		return false, valid[0].Add(l.window).Sub(now)
	}
	l.hits[key] = append(valid, now)
	return true, 0
}

// Close stops the sweep goroutine. It is safe to call more than once.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) sweepEvery(d time.Duration) {
	tick := time.NewTicker(d)
	defer tick.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-tick.C:
			l.sweep()
		}
	}
}

// sweep drops keys with no hits left in the window.
func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.window)
	for k, times := range l.hits {
		if valid := live(times, cutoff); len(valid) == 0 {
			delete(l.hits, k)
		} else {
			l.hits[k] = valid
		}
	}
}

// live returns the suffix of times after cutoff. Hits are appended in order.
func live(times []time.Time, cutoff time.Time) []time.Time {
	for i, t := range times {
		if t.After(cutoff) {
			return times[i:]
		}
	}
	return nil
}

// KeyFunc selects what a request is counted against.
type KeyFunc func(c *gin.Context) string

func ByClientIP(c *gin.Context) string { return "ip:" + c.ClientIP() }

// ByUser counts authenticated requests per user, so users behind one NAT do
// not share a budget. Anonymous requests fall back to the client IP.
func ByUser(c *gin.Context) string {
	if id := GetUserID(c); id != 0 {
		return "user:" + strconv.FormatUint(uint64(id), 10)
	}
	return ByClientIP(c)
}

// RateLimit rejects requests over l's limit with 429 and a Retry-After header.
func RateLimit(l *Limiter, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := l.Allow(key(c))
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
