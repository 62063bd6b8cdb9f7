package infra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"edge-gateway/metrics"
	"edge-gateway/middleware/ratelimit/domain"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Janitor agenda a limpeza periódica das estruturas em memória (janelas
// expiradas, IPs suspeitos parados) num cron próprio, fora do caminho do
// request.
type Janitor struct {
	cron *cron.Cron
	log  *zap.SugaredLogger
	now  func() time.Time

	mu    sync.Mutex
	tasks map[string]domain.Sweeper
}

func NewJanitor(log *zap.SugaredLogger) *Janitor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Janitor{
		cron:  cron.New(),
		log:   log,
		now:   time.Now,
		tasks: make(map[string]domain.Sweeper),
	}
}

// Every registra s para rodar a cada intervalo. Intervalo <= 0 desliga.
// O cron arredonda intervalos menores que 1s para 1s.
func (j *Janitor) Every(name string, every time.Duration, s domain.Sweeper) error {
	if every <= 0 || s == nil {
		return nil
	}
	if _, err := j.cron.AddFunc(fmt.Sprintf("@every %s", every), func() { j.run(name, s) }); err != nil {
		return fmt.Errorf("janitor: schedule %s: %w", name, err)
	}
	j.mu.Lock()
	j.tasks[name] = s
	j.mu.Unlock()
	return nil
}

// SweepAll roda todas as tarefas agora, em sequência.
func (j *Janitor) SweepAll() {
	j.mu.Lock()
	tasks := make(map[string]domain.Sweeper, len(j.tasks))
	for k, v := range j.tasks {
		tasks[k] = v
	}
	j.mu.Unlock()

	for name, s := range tasks {
		j.run(name, s)
	}
}

// run nunca propaga falha: limpeza é best-effort.
func (j *Janitor) run(name string, s domain.Sweeper) {
	defer func() {
		if rec := recover(); rec != nil {
			j.log.Warnw("janitor sweep panicked", "store", name, "panic", rec)
		}
	}()
	n := s.Sweep(j.now())
	if n > 0 {
		metrics.JanitorSwept.WithLabelValues(name).Add(float64(n))
		j.log.Debugw("janitor swept stale records", "store", name, "removed", n)
	}
}

// Start inicia o cron. Pare cancelando o contexto.
func (j *Janitor) Start(ctx context.Context) {
	j.cron.Start()
	go func() {
		<-ctx.Done()
		<-j.cron.Stop().Done()
	}()
}
