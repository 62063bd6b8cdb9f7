package domain

import (
	"context"
	"time"
)

// StatsEvent é uma decisão de um limiter.
//
// Route é a classe da rota ("scan", "admin", "api"), nunca o path cru: o
// gateway repassa qualquer /api/* e as chaves de stats precisam de um
// conjunto fechado. Code é o código do 429 quando a decisão nega.
type StatsEvent struct {
	Limiter string
	Key     Key
	Allowed bool

	Route string
	Code  string

	At time.Time
}

// Outcome é "allowed" ou "denied".
func (ev StatsEvent) Outcome() string {
	if ev.Allowed {
		return "allowed"
	}
	return "denied"
}

// StatsStore recebe as decisões dos limiters. O middleware trata erro como
// best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// Sweeper remove estado velho de estruturas em memória e devolve quantos
// registros saíram. Usado pelo janitor.
type Sweeper interface {
	Sweep(now time.Time) int
}
