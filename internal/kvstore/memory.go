package kvstore

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero means no expiry
	index     int       // position in the expiry heap, -1 when not scheduled
}

// expiryHeap orders scheduled entries by expiry, soonest first
type expiryHeap []*memoryEntry

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].expiresAt.Before(h[j].expiresAt) }
func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *expiryHeap) Push(x any) {
	e := x.(*memoryEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// MemoryStore is the process-local fallback tier. Expiry is driven by a single
// janitor goroutine sleeping until the earliest deadline in a min-heap, and
// reads also treat expired entries as absent.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	expiry  expiryHeap
	now     func() time.Time

	wake   chan struct{}
	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewMemoryStore creates a MemoryStore and starts its janitor
func NewMemoryStore() *MemoryStore {
	return newMemoryStore(time.Now)
}

// NewMemoryStoreWithClock creates a MemoryStore that reads time from now.
// The janitor still sleeps on wall-clock timers; reads honor the clock.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return newMemoryStore(now)
}

func newMemoryStore(now func() time.Time) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     now,
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *MemoryStore) Backend() string { return "memory" }

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if s.expiredLocked(e, s.now()) {
		s.removeLocked(e)
		return nil, ErrNotFound
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	buf := make([]byte, len(value))
	copy(buf, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		s.removeLocked(e)
	}

	e := &memoryEntry{key: key, value: buf, index: -1}
	s.entries[key] = e
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
		heap.Push(&s.expiry, e)
		if e.index == 0 {
			s.signal()
		}
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		s.removeLocked(e)
	}
	return nil
}

func (s *MemoryStore) DeleteByPattern(_ context.Context, pattern string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for key, e := range s.entries {
		if matchPattern(pattern, key) {
			s.removeLocked(e)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	keys := make([]string, 0)
	for key, e := range s.entries {
		if s.expiredLocked(e, now) {
			continue
		}
		if matchPattern(pattern, key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	select {
	case <-s.stopCh:
		return ErrClosed
	default:
		return nil
	}
}

// Len returns the number of live entries
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the janitor. Stored data stays readable until the process exits.
func (s *MemoryStore) Close() error {
	s.once.Do(func() {
		close(s.stopCh)
		<-s.done
	})
	return nil
}

func (s *MemoryStore) expiredLocked(e *memoryEntry, now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

func (s *MemoryStore) removeLocked(e *memoryEntry) {
	delete(s.entries, e.key)
	if e.index >= 0 {
		heap.Remove(&s.expiry, e.index)
	}
}

func (s *MemoryStore) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// evictExpired drops every entry whose deadline has passed and returns the
// next pending deadline, or the zero time when nothing is scheduled
func (s *MemoryStore) evictExpired() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for s.expiry.Len() > 0 {
		next := s.expiry[0]
		if now.Before(next.expiresAt) {
			return next.expiresAt
		}
		heap.Pop(&s.expiry)
		delete(s.entries, next.key)
	}
	return time.Time{}
}

func (s *MemoryStore) janitor() {
	defer close(s.done)

	const idle = time.Hour
	timer := time.NewTimer(idle)
	defer timer.Stop()

	for {
		wait := idle
		if next := s.evictExpired(); !next.IsZero() {
			wait = next.Sub(s.now())
			if wait < time.Millisecond {
				wait = time.Millisecond
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-timer.C:
		case <-s.wake:
		case <-s.stopCh:
			return
		}
	}
}
