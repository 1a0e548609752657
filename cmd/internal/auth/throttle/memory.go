package throttle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMaxKeys caps how many keys a Memory limiter tracks.
const DefaultMaxKeys = 10_000

// Memory is a per-process token bucket per key. Each key may burst up to
// limit attempts and refills at limit per window.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	every   rate.Limit
	burst   int
	maxKeys int
	now     func() time.Time
}

var _ Limiter = (*Memory)(nil)

// NewMemory builds a Memory limiter. A nil now means time.Now.
func NewMemory(limit int, window time.Duration, now func() time.Time) *Memory {
	if limit <= 0 {
		limit = DefaultConfig().Limit
	}
	if window <= 0 {
		window = DefaultConfig().Window
	}
	if now == nil {
		now = time.Now
	}
	return &Memory{
		buckets: make(map[string]*rate.Limiter),
		every:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		maxKeys: DefaultMaxKeys,
		now:     now,
	}
}

// Allow implements Limiter.
func (m *Memory) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return false, 0, err
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok {
		if len(m.buckets) >= m.maxKeys {
			m.makeRoomLocked(now)
		}
		b = rate.NewLimiter(m.every, m.burst)
		m.buckets[key] = b
	}

	if b.AllowN(now, 1) {
		return true, 0, nil
	}
	r := b.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return false, delay, nil
}

// pruneLocked drops buckets that have fully refilled; they carry no state.
func (m *Memory) pruneLocked(now time.Time) {
	for k, b := range m.buckets {
		if b.TokensAt(now) >= float64(m.burst) {
			delete(m.buckets, k)
		}
	}
}

// makeRoomLocked prunes idle buckets and, if the map is still near capacity,
// evicts arbitrary keys until a tenth of it is free. The headroom keeps the
// full scan from running on every new key.
func (m *Memory) makeRoomLocked(now time.Time) {
	m.pruneLocked(now)
	target := m.maxKeys - max(1, m.maxKeys/10)
	for k := range m.buckets {
		if len(m.buckets) <= target {
			return
		}
		delete(m.buckets, k)
	}
}

// Len reports the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}
