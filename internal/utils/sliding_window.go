package utils

import (
	"sync"
	"time"
)

type SlidingWindow struct {
	mu     sync.Mutex
	window time.Duration
	hits   []time.Time
}

func NewSlidingWindow(window time.Duration) *SlidingWindow {
	return &SlidingWindow{window: window}
}

func (w *SlidingWindow) Add(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(now)
	w.hits = append(w.hits, now)
	return len(w.hits)
}

func (w *SlidingWindow) Count(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(now)
	return len(w.hits)
}

// evict expects w.mu to be held.
func (w *SlidingWindow) evict(now time.Time) {
	cutoff := now.Add(-w.window)
	idx := 0
	for _, hit := range w.hits {
		if hit.After(cutoff) {
			break
		}
		idx++
	}
	w.hits = w.hits[idx:]
}

// KeyedLimiter allows at most limit hits per key inside the window, e.g.
// three reports per reporter per minute.
type KeyedLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	windows map[string]*SlidingWindow
}

func NewKeyedLimiter(window time.Duration, limit int) *KeyedLimiter {
	if limit < 1 {
		limit = 1
	}
	return &KeyedLimiter{window: window, limit: limit, windows: make(map[string]*SlidingWindow)}
}

// Allow records a hit for key and reports whether it fits under the limit.
// Rejected hits are not counted.
func (l *KeyedLimiter) Allow(key string, now time.Time) bool {
	if l.window <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	win, ok := l.windows[key]
	if !ok {
		win = NewSlidingWindow(l.window)
		l.windows[key] = win
	}
	if win.Count(now) >= l.limit {
		return false
	}
	win.Add(now)
	l.prune(now)
	return true
}

// prune drops keys whose windows have emptied. It expects l.mu to be held.
func (l *KeyedLimiter) prune(now time.Time) {
	for key, win := range l.windows {
		if win.Count(now) == 0 {
			delete(l.windows, key)
		}
	}
}

func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
