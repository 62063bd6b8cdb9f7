package security

import (
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

type record struct {
	count    int64
	lastSeen time.Time
}

// Tracker conta requests por endereço. Diferente da janela fixa do rate
// limit, a janela aqui decai a partir do último acesso: um endereço que
// fica parado mais que window recomeça do zero.
type Tracker struct {
	window  time.Duration
	entries *xsync.Map[string, record]
}

func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = time.Minute
	}
	return &Tracker{
		window:  window,
		entries: xsync.NewMap[string, record](),
	}
}

func (t *Tracker) Window() time.Duration { return t.window }

// Hit registra um acesso de key em now e devolve a contagem resultante.
func (t *Tracker) Hit(key string, now time.Time) int64 {
	rec, _ := t.entries.Compute(key, func(old record, loaded bool) (record, xsync.ComputeOp) {
		if !loaded || now.Sub(old.lastSeen) > t.window {
			return record{count: 1, lastSeen: now}, xsync.UpdateOp
		}
		old.count++
		old.lastSeen = now
		return old, xsync.UpdateOp
	})
	return rec.count
}

func (t *Tracker) Len() int { return t.entries.Size() }

// Sweep remove endereços sem acesso há mais de 2*window.
func (t *Tracker) Sweep(now time.Time) int {
	limit := 2 * t.window
	var stale []string
	t.entries.Range(func(key string, rec record) bool {
		if now.Sub(rec.lastSeen) > limit {
			stale = append(stale, key)
		}
		return true
	})

	removed := 0
	for _, key := range stale {
		t.entries.Compute(key, func(cur record, loaded bool) (record, xsync.ComputeOp) {
			if !loaded || now.Sub(cur.lastSeen) <= limit {
				return cur, xsync.CancelOp
			}
			removed++
			return cur, xsync.DeleteOp
		})
	}
	return removed
}
