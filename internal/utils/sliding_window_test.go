package utils

import (
	"testing"
	"time"
)

func TestSlidingWindowPush(t *testing.T) {
	window := NewSlidingWindow[int](2*time.Second, 0)
	now := time.Now()
	if entries := window.Push(now, 1); len(entries) != 1 {
		t.Fatalf("expected 1, got %d", len(entries))
	}
	if entries := window.Push(now.Add(500*time.Millisecond), 2); len(entries) != 2 {
		t.Fatalf("expected 2, got %d", len(entries))
	}
	if entries := window.Push(now.Add(3*time.Second), 3); len(entries) != 1 || entries[0].Payload != 3 {
		t.Fatalf("expected only the new entry, got %+v", entries)
	}
}

func TestSlidingWindowObserveReturnsHistory(t *testing.T) {
	window := NewSlidingWindow[string](5*time.Second, 0)
	now := time.Now()
	if prior := window.Observe(now, "a"); len(prior) != 0 {
		t.Fatalf("expected empty history, got %d", len(prior))
	}
	prior := window.Observe(now.Add(time.Second), "b")
	if len(prior) != 1 || prior[0].Payload != "a" {
		t.Fatalf("unexpected history: %+v", prior)
	}
	prior = window.Observe(now.Add(5500*time.Millisecond), "c")
	if len(prior) != 1 || prior[0].Payload != "b" {
		t.Fatalf("expected only b to survive pruning, got %+v", prior)
	}
	prior = window.Observe(now.Add(12*time.Second), "d")
	if len(prior) != 0 {
		t.Fatalf("expected empty history after the window passed, got %+v", prior)
	}
}

func TestSlidingWindowLimit(t *testing.T) {
	window := NewSlidingWindow[int](time.Minute, 3)
	now := time.Now()
	var entries []Entry[int]
	for i := 0; i < 5; i++ {
		entries = window.Push(now.Add(time.Duration(i)*time.Second), i)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Payload != 2 || entries[2].Payload != 4 {
		t.Fatalf("expected most recent entries, got %+v", entries)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].At.Before(entries[i-1].At) {
			t.Fatalf("entries out of order")
		}
	}
}

func TestSlidingWindowKeepsEntriesInsideWindow(t *testing.T) {
	window := NewSlidingWindow[int](10*time.Second, 0)
	now := time.Now()
	window.Push(now, 1)
	window.Push(now.Add(9*time.Second), 2)
	entries := window.Push(now.Add(10*time.Second), 3)
	if len(entries) != 2 || entries[0].Payload != 2 {
		t.Fatalf("expected the boundary entry pruned and newer kept, got %+v", entries)
	}
}
