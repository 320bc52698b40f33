package server

import (
	"sync"
	"time"
)

// slidingWindowLimiter keeps the request timestamps of each key inside the
// window.
type slidingWindowLimiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
}

func newSlidingWindowLimiter() *slidingWindowLimiter {
	return &slidingWindowLimiter{
		hits: make(map[string][]time.Time),
	}
}

// allow records a request for key at now if fewer than limit requests fell
// inside the window. When refused it returns how long until a slot frees up.
func (l *slidingWindowLimiter) allow(key string, limit int, window time.Duration, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-window)
	kept := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= limit {
		l.hits[key] = kept
		return false, kept[0].Add(window).Sub(now)
	}
	l.hits[key] = append(kept, now)
	return true, 0
}
