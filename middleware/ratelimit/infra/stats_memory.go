package infra

import (
	"context"
	"maps"
	"sync"

	"edge-gateway/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

func (c *Counters) add(allowed bool) {
	if allowed {
		c.Allowed++
		return
	}
	c.Denied++
}

// StatsSnapshot é a foto servida em /debug/ratelimit.
type StatsSnapshot struct {
	Total      Counters            `json:"total"`
	ByLimiter  map[string]Counters `json:"by_limiter"`
	ByRoute    map[string]Counters `json:"by_route"`
	Rejections map[string]int64    `json:"rejections"`
}

// MemoryStatsStore soma as decisões deste processo. Todas as dimensões são
// fechadas (limiter, classe de rota, código de rejeição), então o tamanho não
// cresce com o tráfego; a chave do cliente fica de fora.
type MemoryStatsStore struct {
	mu         sync.Mutex
	total      Counters
	byLimiter  map[string]Counters
	byRoute    map[string]Counters
	rejections map[string]int64
}

func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{
		byLimiter:  make(map[string]Counters),
		byRoute:    make(map[string]Counters),
		rejections: make(map[string]int64),
	}
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Allowed)
	bump(s.byLimiter, ev.Limiter, ev.Allowed)
	bump(s.byRoute, ev.Route, ev.Allowed)
	if !ev.Allowed && ev.Code != "" {
		s.rejections[ev.Code]++
	}
	return nil
}

func bump(m map[string]Counters, k string, allowed bool) {
	if k == "" {
		k = "unknown"
	}
	c := m[k]
	c.add(allowed)
	m[k] = c
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByLimiter() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byLimiter)
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byRoute)
}

// Rejections conta negações por código (RATE_LIMITED, BURST_LIMITED).
func (s *MemoryStatsStore) Rejections() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.rejections)
}

func (s *MemoryStatsStore) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		Total:      s.total,
		ByLimiter:  maps.Clone(s.byLimiter),
		ByRoute:    maps.Clone(s.byRoute),
		Rejections: maps.Clone(s.rejections),
	}
}
