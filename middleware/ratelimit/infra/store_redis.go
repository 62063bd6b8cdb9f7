package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"edge-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// incrWindowScript faz INCR e, só no primeiro hit da janela, PEXPIRE.
// Devolve {count, pttl}. Uma chave sem TTL (ex: criada por fora) recebe a
// janela para não ficar eterna.
var incrWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisStore é o RateStore compartilhado: mesma janela fixa, mas o contador
// vive no Redis e vale para todas as instâncias do gateway.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

type RedisStoreOption func(*RedisStore)

func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithRedisClock(now func() time.Time) RedisStoreOption {
	return func(s *RedisStore) { s.now = now }
}

func NewRedisStore(rdb *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		rdb:    rdb,
		prefix: "gateway:rl",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Increment implementa domain.RateStore.
func (s *RedisStore) Increment(ctx context.Context, key domain.Key, window time.Duration) (domain.Window, error) {
	ms := window.Milliseconds()
	if ms <= 0 {
		ms = 1
	}

	res, err := incrWindowScript.Run(ctx, s.rdb, []string{s.prefix + ":" + string(key)}, ms).Int64Slice()
	if err != nil {
		return domain.Window{}, fmt.Errorf("redis incr window: %w", err)
	}
	if len(res) != 2 {
		return domain.Window{}, fmt.Errorf("redis incr window: unexpected reply %v", res)
	}

	// Start é derivado do TTL restante: start = now + ttl - window.
	ttl := time.Duration(res[1]) * time.Millisecond
	return domain.Window{
		Count:    res[0],
		Start:    s.now().Add(ttl - window),
		Duration: window,
	}, nil
}
