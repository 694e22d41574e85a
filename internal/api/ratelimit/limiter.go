// Package ratelimit throttles manual sweep triggers per client.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits at most max triggers per client within any sliding span.
// Each client keeps the timestamps of its admitted triggers.
type Limiter struct {
	max   int
	span  time.Duration
	clock func() time.Time

	mu   sync.Mutex
	seen map[string][]time.Time
}

// New returns a Limiter admitting n triggers per span. Non-positive values
// fall back to one trigger per minute.
func New(n int, span time.Duration) *Limiter {
	if n <= 0 {
		n = 1
	}
	if span <= 0 {
		span = time.Minute
	}
	return &Limiter{
		max:   n,
		span:  span,
		clock: time.Now,
		seen:  make(map[string][]time.Time),
	}
}

// Allow records a trigger for client if it is admitted. When it is not, the
// duration is how long until the oldest recorded trigger leaves the span.
func (l *Limiter) Allow(client string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	recent := l.trim(client, now)
	if len(recent) >= l.max {
		return false, recent[0].Add(l.span).Sub(now)
	}
	l.seen[client] = append(recent, now)
	return true, 0
}

// Forget drops clients with no trigger inside the span.
func (l *Limiter) Forget() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	for client := range l.seen {
		l.trim(client, now)
	}
}

// trim discards timestamps that have left the span. Callers hold mu.
func (l *Limiter) trim(client string, now time.Time) []time.Time {
	stamps := l.seen[client]
	i := 0
	for i < len(stamps) && !now.Before(stamps[i].Add(l.span)) {
		i++
	}
	stamps = stamps[i:]
	if len(stamps) == 0 {
		delete(l.seen, client)
		return nil
	}
	l.seen[client] = stamps
	return stamps
}

func (l *Limiter) clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
