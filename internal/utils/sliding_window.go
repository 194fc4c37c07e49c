package utils

import (
	"sync"
	"time"
)

// Entry is a single timestamped event held by a SlidingWindow.
type Entry[T any] struct {
	At      time.Time
	Payload T
}

// SlidingWindow keeps insertion-ordered entries no older than window. When limit
// is positive only the most recent limit entries are retained.
type SlidingWindow[T any] struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	entries []Entry[T]
}

func NewSlidingWindow[T any](window time.Duration, limit int) *SlidingWindow[T] {
	return &SlidingWindow[T]{window: window, limit: limit}
}

// Observe prunes the window, returns a copy of the entries that were already
// present and then records payload. Callers evaluate the current event against
// the returned history.
func (w *SlidingWindow[T]) Observe(now time.Time, payload T) []Entry[T] {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	prior := make([]Entry[T], len(w.entries))
	copy(prior, w.entries)
	w.appendLocked(now, payload)
	return prior
}

// Push prunes the window, records payload and returns a copy of the window
// including the new entry.
func (w *SlidingWindow[T]) Push(now time.Time, payload T) []Entry[T] {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	w.appendLocked(now, payload)
	out := make([]Entry[T], len(w.entries))
	copy(out, w.entries)
	return out
}

func (w *SlidingWindow[T]) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	idx := 0
	for _, entry := range w.entries {
		if entry.At.After(cutoff) {
			break
		}
		idx++
	}
	if idx > 0 {
		w.entries = append(w.entries[:0], w.entries[idx:]...)
	}
}

func (w *SlidingWindow[T]) appendLocked(now time.Time, payload T) {
	w.entries = append(w.entries, Entry[T]{At: now, Payload: payload})
	if w.limit > 0 && len(w.entries) > w.limit {
		w.entries = append(w.entries[:0], w.entries[len(w.entries)-w.limit:]...)
	}
}
