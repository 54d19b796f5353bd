package audit

import (
	"context"
	"sync"
	"time"
)

type sessionEntry struct {
	vm       *TableViewModel
	lastSeen time.Time
}

// Sessions keeps one TableViewModel per browser session. Entries idle longer
// than the configured TTL are dropped by Prune, and the least recently used
// entry is evicted once maxEntries is reached. Evicted sessions are rebuilt
// from their stored state on the next request.
type Sessions struct {
	fetcher    Fetcher
	metrics    *Metrics
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*sessionEntry
}

// NewSessions returns an empty registry. maxEntries <= 0 disables the cap.
func NewSessions(fetcher Fetcher, metrics *Metrics, ttl time.Duration, maxEntries int) *Sessions {
	return &Sessions{
		fetcher:    fetcher,
		metrics:    metrics,
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]*sessionEntry),
	}
}

// Get returns the view model of a session. The boolean is true when it was
// created by this call and still needs restoring.
func (s *Sessions) Get(id string) (*TableViewModel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[id]; ok {
		entry.lastSeen = s.now()
		return entry.vm, false
	}
	if s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.evictOldestLocked()
	}
	vm := NewTableViewModel(s.fetcher, s.metrics)
	s.entries[id] = &sessionEntry{vm: vm, lastSeen: s.now()}
	return vm, true
}

func (s *Sessions) evictOldestLocked() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, entry := range s.entries {
		if oldestID == "" || entry.lastSeen.Before(oldest) {
			oldestID, oldest = id, entry.lastSeen
		}
	}
	delete(s.entries, oldestID)
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Prune drops sessions idle longer than the TTL and returns how many.
func (s *Sessions) Prune() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for id, entry := range s.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(s.entries, id)
			dropped++
		}
	}
	return dropped
}

// Run prunes on every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Prune()
		}
	}
}
