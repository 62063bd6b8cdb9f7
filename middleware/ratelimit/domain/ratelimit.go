package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

type Key string

// Window é o registro de uma chave dentro da janela fixa corrente.
//
// Invariante: se now - Start > Duration, o registro reinicia em {1, now};
// caso contrário Count é incrementado.
type Window struct {
	Count    int64
	Start    time.Time
	Duration time.Duration
}

// ResetAt é o instante em que a janela corrente expira.
func (w Window) ResetAt() time.Time { return w.Start.Add(w.Duration) }

// Expired diz se a janela já passou em now (mesma regra do reset).
func (w Window) Expired(now time.Time) bool { return now.Sub(w.Start) > w.Duration }

// RateStore incrementa o contador da chave na janela e devolve o registro
// já atualizado. Cada chamada é um passo atômico: nenhum outro request vê
// um registro pela metade.
type RateStore interface {
	Increment(ctx context.Context, key Key, window time.Duration) (Window, error)
}

// Rule descreve um limite de janela fixa (ex: 60 requisições a cada 5 minutos).
type Rule struct {
	Max    int64
	Window time.Duration
}

type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
