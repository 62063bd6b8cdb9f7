// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryStore: janela fixa por chave em memória (xsync.Map)
//   - TTLStore: janela fixa num cache limitado com expiração (otter)
//   - RedisStore: janela fixa compartilhada entre instâncias (script Lua)
//   - ChanPool: semáforo simples para limite de concorrência
//   - Janitor: limpeza periódica (cron) do estado em memória
//   - *StatsStore: estatísticas das decisões (memória, Redis, Prometheus)
package infra
