package infra

import (
	"context"
	"time"

	"edge-gateway/middleware/ratelimit/domain"

	"github.com/puzpuzpuz/xsync/v4"
)

// MemoryStore é o RateStore de um único processo: um registro de janela fixa
// por chave num xsync.Map. O read-modify-write de cada chave roda dentro de
// Compute, então requests paralelos nunca veem um registro pela metade.
type MemoryStore struct {
	entries *xsync.Map[domain.Key, domain.Window]
	now     func() time.Time
}

type StoreOption func(*MemoryStore)

// WithClock troca o relógio (testes).
func WithClock(now func() time.Time) StoreOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		entries: xsync.NewMap[domain.Key, domain.Window](),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Increment implementa domain.RateStore.
func (s *MemoryStore) Increment(_ context.Context, key domain.Key, window time.Duration) (domain.Window, error) {
	now := s.now()
	win, _ := s.entries.Compute(key, func(old domain.Window, loaded bool) (domain.Window, xsync.ComputeOp) {
		if !loaded || old.Duration != window || old.Expired(now) {
			return domain.Window{Count: 1, Start: now, Duration: window}, xsync.UpdateOp
		}
		old.Count++
		return old, xsync.UpdateOp
	})
	return win, nil
}

// Peek devolve o registro atual sem incrementar.
func (s *MemoryStore) Peek(key domain.Key) (domain.Window, bool) {
	return s.entries.Load(key)
}

func (s *MemoryStore) Len() int { return s.entries.Size() }

// Sweep implementa domain.Sweeper. Remove registros cuja janela já expirou há
// mais de uma janela inteira; um registro expirado seria reiniciado de
// qualquer forma no próximo Increment, então remover não muda a decisão.
func (s *MemoryStore) Sweep(now time.Time) int {
	var stale []domain.Key
	s.entries.Range(func(key domain.Key, w domain.Window) bool {
		if now.Sub(w.Start) > 2*w.Duration {
			stale = append(stale, key)
		}
		return true
	})

	removed := 0
	for _, key := range stale {
		s.entries.Compute(key, func(cur domain.Window, loaded bool) (domain.Window, xsync.ComputeOp) {
			if !loaded {
				return cur, xsync.CancelOp
			}
			if now.Sub(cur.Start) <= 2*cur.Duration {
				// renovado em paralelo, fica
				return cur, xsync.CancelOp
			}
			removed++
			return cur, xsync.DeleteOp
		})
	}
	return removed
}
