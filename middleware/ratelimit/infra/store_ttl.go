package infra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"edge-gateway/middleware/ratelimit/domain"

	"github.com/maypok86/otter"
)

// TTLStore guarda as janelas num cache otter limitado, com TTL igual à
// janela (+1s de folga por causa da resolução do relógio do otter). Chaves
// inativas somem sozinhas, sem janitor: é o store do burst limiter, que vê
// muitas chaves por pouco tempo.
type TTLStore struct {
	mu    sync.Mutex
	cache otter.Cache[domain.Key, domain.Window]
	now   func() time.Time
}

type TTLStoreOption func(*TTLStore)

func WithTTLClock(now func() time.Time) TTLStoreOption {
	return func(s *TTLStore) { s.now = now }
}

// NewTTLStore cria um store para janelas de até `window`, guardando no
// máximo `capacity` chaves (as menos usadas saem primeiro).
func NewTTLStore(window time.Duration, capacity int, opts ...TTLStoreOption) (*TTLStore, error) {
	if window <= 0 {
		return nil, fmt.Errorf("ttl store: window must be > 0")
	}
	if capacity <= 0 {
		capacity = 100_000
	}
	cache, err := otter.MustBuilder[domain.Key, domain.Window](capacity).
		WithTTL(window + time.Second).
		Build()
	if err != nil {
		return nil, fmt.Errorf("ttl store: build cache: %w", err)
	}

	s := &TTLStore{cache: cache, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Increment implementa domain.RateStore.
func (s *TTLStore) Increment(_ context.Context, key domain.Key, window time.Duration) (domain.Window, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	win, ok := s.cache.Get(key)
	if !ok || win.Duration != window || win.Expired(now) {
		win = domain.Window{Count: 1, Start: now, Duration: window}
	} else {
		win.Count++
	}
	s.cache.Set(key, win)
	return win, nil
}

func (s *TTLStore) Len() int { return s.cache.Size() }

// Close para os goroutines internos do otter.
func (s *TTLStore) Close() { s.cache.Close() }
