package infra

import (
	"context"
	"sync"
	"testing"
	"time"

	"edge-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestMemoryStore_CountsWithinWindow(t *testing.T) {
	clk := newFakeClock()
	s := NewMemoryStore(WithClock(clk.Now))
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		w, err := s.Increment(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, w.Count)
	}
}

func TestMemoryStore_ResetsAfterWindow(t *testing.T) {
	clk := newFakeClock()
	s := NewMemoryStore(WithClock(clk.Now))
	ctx := context.Background()

	first, _ := s.Increment(ctx, "k", time.Minute)
	s.Increment(ctx, "k", time.Minute)

	clk.Advance(time.Minute + time.Millisecond)
	w, err := s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.Count)
	assert.True(t, w.Start.After(first.Start))
	assert.Equal(t, clk.Now().Add(time.Minute), w.ResetAt())
}

func TestMemoryStore_ExactlyAtWindowEdgeStillCounts(t *testing.T) {
	clk := newFakeClock()
	s := NewMemoryStore(WithClock(clk.Now))
	ctx := context.Background()

	s.Increment(ctx, "k", time.Minute)
	clk.Advance(time.Minute)
	w, _ := s.Increment(ctx, "k", time.Minute)
	assert.Equal(t, int64(2), w.Count)
}

func TestMemoryStore_KeysAreIndependent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Increment(ctx, "a", time.Minute)
	s.Increment(ctx, "a", time.Minute)
	w, _ := s.Increment(ctx, "b", time.Minute)
	assert.Equal(t, int64(1), w.Count)
	assert.Equal(t, 2, s.Len())
}

func TestMemoryStore_ParallelIncrementsAreNotLost(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Increment(ctx, "k", time.Hour)
		}()
	}
	wg.Wait()

	w, ok := s.Peek("k")
	require.True(t, ok)
	assert.Equal(t, int64(n), w.Count)
}

func TestMemoryStore_SweepRemovesOnlyStaleRecords(t *testing.T) {
	clk := newFakeClock()
	s := NewMemoryStore(WithClock(clk.Now))
	ctx := context.Background()

	s.Increment(ctx, "old", time.Minute)
	clk.Advance(90 * time.Second)
	s.Increment(ctx, "fresh", time.Minute)
	clk.Advance(45 * time.Second)

	removed := s.Sweep(clk.Now())
	assert.Equal(t, 1, removed)

	_, ok := s.Peek(domain.Key("old"))
	assert.False(t, ok)
	_, ok = s.Peek(domain.Key("fresh"))
	assert.True(t, ok)
}

func TestTTLStore_CountsAndResets(t *testing.T) {
	clk := newFakeClock()
	s, err := NewTTLStore(time.Second, 1000, WithTTLClock(clk.Now))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		w, err := s.Increment(ctx, "ip", time.Second)
		require.NoError(t, err)
		assert.Equal(t, i, w.Count)
	}

	clk.Advance(1100 * time.Millisecond)
	w, err := s.Increment(ctx, "ip", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.Count)
}

func TestTTLStore_RejectsZeroWindow(t *testing.T) {
	_, err := NewTTLStore(0, 10)
	assert.Error(t, err)
}
