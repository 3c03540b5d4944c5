package ratelimit

import (
	"math"
	"sync"
	"time"
)

type Config struct {
	RPS   float64
	Burst int

	// Operational bounds for the in-memory map (single-process only).
	MaxEntries int
	EntryTTL   time.Duration
}

// Limiter applies a per-user token bucket.
type Limiter struct {
	cfg Config

	mu sync.Mutex
	m  map[string]*userLimiter
}

type userLimiter struct {
	mu sync.Mutex

	tb tokenBucket

	lastSeen time.Time
}

type tokenBucket struct {
	rps      float64
	capacity float64

	tokens float64
	last   time.Time
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	return &Limiter{
		cfg: cfg,
		m:   make(map[string]*userLimiter),
	}
}

type Decision struct {
	Allowed    bool
	RetryAfter int
}

// Allow decides whether the given user may issue one more request now.
func (l *Limiter) Allow(userID string, now time.Time) Decision {
	if userID == "" {
		userID = "anonymous"
	}
	if l.cfg.RPS <= 0 || l.cfg.Burst <= 0 {
		return Decision{Allowed: true}
	}

	ul := l.getOrCreate(userID, now)
	ul.touch(now)

	ok, retryAfter := ul.allowToken(now, l.cfg.RPS, l.cfg.Burst)
	if !ok {
		return Decision{Allowed: false, RetryAfter: retryAfter}
	}
	return Decision{Allowed: true}
}

func (l *Limiter) getOrCreate(userID string, now time.Time) *userLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.m) >= l.cfg.MaxEntries {
		l.gcLocked(now)
		// If still too big, drop one arbitrary entry (bounded memory > perfect fairness).
		if len(l.m) >= l.cfg.MaxEntries {
			for k := range l.m {
				delete(l.m, k)
				break
			}
		}
	}

	if ul, ok := l.m[userID]; ok {
		return ul
	}
	ul := &userLimiter{lastSeen: now}
	l.m[userID] = ul
	return ul
}

func (l *Limiter) gcLocked(now time.Time) {
	ttl := l.cfg.EntryTTL
	for k, v := range l.m {
		if now.Sub(v.lastSeen) > ttl {
			delete(l.m, k)
		}
	}
}

func (ul *userLimiter) touch(now time.Time) {
	ul.lastSeen = now
}

func (ul *userLimiter) allowToken(now time.Time, rps float64, burst int) (bool, int) {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	capacity := float64(burst)
	if ul.tb.capacity == 0 {
		ul.tb = tokenBucket{
			rps:      rps,
			capacity: capacity,
			tokens:   capacity,
			last:     now,
		}
	}

	// If config changes at runtime (rare), adapt.
	ul.tb.rps = rps
	ul.tb.capacity = capacity

	elapsed := now.Sub(ul.tb.last).Seconds()
	if elapsed > 0 {
		ul.tb.tokens = math.Min(ul.tb.capacity, ul.tb.tokens+(elapsed*ul.tb.rps))
		ul.tb.last = now
	}

	if ul.tb.tokens >= 1.0 {
		ul.tb.tokens -= 1.0
		return true, 0
	}

	needed := 1.0 - ul.tb.tokens
	seconds := needed / ul.tb.rps
	retryAfter := int(math.Ceil(seconds))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}
