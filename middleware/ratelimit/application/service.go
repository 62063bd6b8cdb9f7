package application

import (
	"context"
	"fmt"
	"time"

	"edge-gateway/middleware/ratelimit/domain"
)

// Service aplica uma regra de janela fixa sobre um RateStore.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Janela fixa aceita o artefato de borda (até 2x Max perto da virada da
// janela) em troca de um único contador por chave.
type Service struct {
	Store domain.RateStore
	Rule  domain.Rule
	// Now é o relógio usado para calcular RetryAfter (padrão time.Now).
	Now func() time.Time
}

// Decide incrementa o contador da chave e decide.
// Erro do store é devolvido junto com uma decisão permissiva; quem chama
// escolhe se falha aberto ou fechado.
func (s Service) Decide(ctx context.Context, key domain.Key) (domain.Decision, error) {
	if s.Store == nil || s.Rule.Max <= 0 || s.Rule.Window <= 0 {
		return domain.Decision{Allowed: true}, nil
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	win, err := s.Store.Increment(ctx, key, s.Rule.Window)
	if err != nil {
		return domain.Decision{Allowed: true, Limit: s.Rule.Max}, fmt.Errorf("increment %q: %w", key, err)
	}

	dec := domain.Decision{
		Limit:     s.Rule.Max,
		Remaining: s.Rule.Max - win.Count,
		ResetAt:   win.ResetAt(),
	}
	if dec.Remaining < 0 {
		dec.Remaining = 0
	}
	if win.Count <= s.Rule.Max {
		dec.Allowed = true
		return dec, nil
	}

	dec.RetryAfter = dec.ResetAt.Sub(now())
	if dec.RetryAfter <= 0 {
		// janela virou entre o incremento e agora; o próximo request já passa
		dec.RetryAfter = time.Second
	}
	return dec, nil
}
