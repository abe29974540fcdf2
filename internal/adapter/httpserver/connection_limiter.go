package httpserver

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	rateLimiterIdleTTL      = 10 * time.Minute
	rateLimiterCleanupEvery = 5 * time.Minute
)

// LimitReason describes why a websocket connection was refused.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// ConnectionLimits admits websocket connections. It enforces a cap on
// concurrent connections per instance and per client IP, and a token-bucket
// rate for new connections per IP.
type ConnectionLimits struct {
	clock clockwork.Clock

	mu        sync.Mutex
	current   int
	maxTotal  int
	perIP     map[string]int
	maxPerIP  int
	limiters  map[string]*rateLimiterEntry
	rate      rate.Limit
	burst     int
	cleanupAt time.Time
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewConnectionLimits(clock clockwork.Clock, maxTotal, maxPerIP int, connectionsPerSecond float64, burst int) *ConnectionLimits {
	return &ConnectionLimits{
		clock:     clock,
		maxTotal:  maxTotal,
		perIP:     make(map[string]int),
		maxPerIP:  maxPerIP,
		limiters:  make(map[string]*rateLimiterEntry),
		rate:      rate.Limit(connectionsPerSecond),
		burst:     burst,
		cleanupAt: clock.Now().Add(rateLimiterCleanupEvery),
	}
}

// Acquire reserves a connection slot for ip. On success the caller must
// Release it when the connection ends.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.cleanupAt) {
		l.cleanupLocked(now)
		l.cleanupAt = now.Add(rateLimiterCleanupEvery)
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	if !entry.limiter.AllowN(now, 1) {
		return false, LimitReasonRate
	}

	if l.current >= l.maxTotal {
		return false, LimitReasonGlobal
	}
	if l.perIP[ip] >= l.maxPerIP {
		return false, LimitReasonPerIP
	}

	l.current++
	l.perIP[ip]++
	return true, ""
}

func (l *ConnectionLimits) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count, ok := l.perIP[ip]
	if !ok {
		return
	}
	if count <= 1 {
		delete(l.perIP, ip)
	} else {
		l.perIP[ip] = count - 1
	}
	l.current--
}

// Current returns the number of admitted connections.
func (l *ConnectionLimits) Current() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// CountIP returns the number of admitted connections from ip.
func (l *ConnectionLimits) CountIP(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perIP[ip]
}

// ActiveLimiters returns the number of per-IP rate limiters being tracked.
func (l *ConnectionLimits) ActiveLimiters() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// cleanupLocked forgets rate limiters of IPs that have been idle for a while.
func (l *ConnectionLimits) cleanupLocked(now time.Time) {
	cutoff := now.Add(-rateLimiterIdleTTL)
	for ip, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}
