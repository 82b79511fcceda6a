package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryKey struct {
	key   string
	start int64
}

type memoryRecord struct {
	count int
	end   time.Time
}

// MemoryStore keeps bucket counters in process memory. It suits a single
// instance deployment; counters are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	records map[memoryKey]*memoryRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[memoryKey]*memoryRecord)}
}

// IncrementIfBelow implements Store.
func (s *MemoryStore) IncrementIfBelow(_ context.Context, b Bucket, limit int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memoryKey{key: b.Key, start: b.Start.UnixNano()}
	rec, ok := s.records[k]
	if !ok {
		rec = &memoryRecord{end: b.End()}
		s.records[k] = rec
	}
	if rec.count >= limit {
		return rec.count, false, nil
	}
	rec.count++
	return rec.count, true, nil
}

// DeleteExpired implements Store.
func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, rec := range s.records {
		if !rec.end.After(now) {
			delete(s.records, k)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of live buckets.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
