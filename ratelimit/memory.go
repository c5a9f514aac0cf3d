package ratelimit

import (
	"container/list"
	"context"
	"sync"
	"time"

	"shadowtips-backend/metrics"

	"go.uber.org/zap"
)

type quotaRecord struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	evicted     bool

	key string
	// elem is the record's place in MemoryStore.order, guarded by MemoryStore.mu.
	elem *list.Element
}

// MemoryStore keeps quota records in process memory. The map is guarded by an
// RWMutex and every record by its own mutex, so clients never wait on each other.
// Records are dropped by Sweep once their window has been closed for
// staleWindows windows, and the map never holds more than maxKeys records.
// order lists records by window start, oldest first, so the cap evicts in O(1).
type MemoryStore struct {
	limit        int
	window       time.Duration
	staleWindows int
	maxKeys      int
	now          func() time.Time

	mu      sync.RWMutex
	records map[string]*quotaRecord
	order   *list.List
}

type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func WithStaleWindows(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.staleWindows = n
		}
	}
}

func WithMaxKeys(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxKeys = n
		}
	}
}

func NewMemoryStore(limit int, window time.Duration, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		limit:        limit,
		window:       window,
		staleWindows: 2,
		maxKeys:      100000,
		now:          time.Now,
		records:      make(map[string]*quotaRecord),
		order:        list.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) CheckAndConsume(ctx context.Context, key string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	for {
		rec := s.record(key)

		rec.mu.Lock()
		if rec.evicted {
			// Swept between lookup and lock; take the fresh record.
			rec.mu.Unlock()
			continue
		}
		d, reset := s.consumeLocked(key, rec)
		rec.mu.Unlock()
		if reset {
			s.touch(rec)
		}
		return d, nil
	}
}

// consumeLocked reports whether it opened a new window for rec.
func (s *MemoryStore) consumeLocked(key string, rec *quotaRecord) (Decision, bool) {
	now := s.now()
	reset := false
	if now.Sub(rec.windowStart) >= s.window {
		rec.count = 0
		rec.windowStart = now
		reset = true
	}

	d := Decision{
		Key:         key,
		Limit:       s.limit,
		WindowStart: rec.windowStart,
		ResetAt:     rec.windowStart.Add(s.window),
	}
	if rec.count >= s.limit {
		d.Count = rec.count
		return d, reset
	}
	rec.count++
	d.Allowed = true
	d.Count = rec.count
	return d, reset
}

// touch moves rec behind every record whose window opened earlier.
func (s *MemoryStore) touch(rec *quotaRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.elem != nil {
		s.order.MoveToBack(rec.elem)
	}
}

func (s *MemoryStore) Release(ctx context.Context, d Decision) error {
	if !d.Allowed {
		return nil
	}
	s.mu.RLock()
	rec, ok := s.records[d.Key]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.evicted && rec.windowStart.Equal(d.WindowStart) && rec.count > 0 {
		rec.count--
	}
	return nil
}

// record returns the record for key, creating it lazily.
func (s *MemoryStore) record(key string) *quotaRecord {
	s.mu.RLock()
	rec, ok := s.records[key]
	s.mu.RUnlock()
	if ok {
		return rec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[key]; ok {
		return rec
	}
	if len(s.records) >= s.maxKeys {
		if front := s.order.Front(); front != nil {
			oldest := front.Value.(*quotaRecord)
			oldest.mu.Lock()
			s.removeLocked(oldest)
			oldest.mu.Unlock()
		}
	}
	rec = &quotaRecord{key: key}
	rec.elem = s.order.PushBack(rec)
	s.records[key] = rec
	metrics.QuotaKeys.Set(float64(len(s.records)))
	return rec
}

// Sweep drops stale records and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.sweepLocked(s.now())
	metrics.QuotaKeys.Set(float64(len(s.records)))
	return removed
}

func (s *MemoryStore) sweepLocked(now time.Time) int {
	staleAfter := time.Duration(s.staleWindows) * s.window
	removed := 0
	for e := s.order.Front(); e != nil; {
		next := e.Next()
		rec := e.Value.(*quotaRecord)
		rec.mu.Lock()
		if now.Sub(rec.windowStart) >= staleAfter {
			s.removeLocked(rec)
			removed++
		}
		rec.mu.Unlock()
		e = next
	}
	return removed
}

// removeLocked drops rec. Both s.mu and rec.mu must be held.
func (s *MemoryStore) removeLocked(rec *quotaRecord) {
	rec.evicted = true
	delete(s.records, rec.key)
	if rec.elem != nil {
		s.order.Remove(rec.elem)
		rec.elem = nil
	}
}

// Len reports the number of tracked clients.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Run sweeps stale records once per window until ctx is cancelled.
func (s *MemoryStore) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				zap.L().Debug("quota records swept", zap.Int("removed", n), zap.Int("remaining", s.Len()))
			}
		case <-ctx.Done():
			return nil
		}
	}
}
