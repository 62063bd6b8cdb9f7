package infra

import (
	"context"
	"strings"
	"time"

	"edge-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore soma as decisões de todas as instâncias no mesmo Redis.
//
// Layout (prefixo padrão gateway:stats):
//
//	<prefix>:total                allowed | denied
//	<prefix>:limiter:<limiter>    allowed | denied | <CODE>
//	<prefix>:route:<classe>       allowed | denied      (scan, admin, api)
//	<prefix>:<bucket>:<stamp>     <limiter>:allowed | <limiter>:denied  (expira em ttl)
//	<prefix>:offenders            ZSET chave do cliente -> negações (opcional, expira em ttl)
type RedisStatsStore struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration

	// layout do carimbo do bucket; vazio desliga a série temporal
	stamp  string
	bucket string

	offenders bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithStatsTTL vale para a série temporal e para offenders.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsBucket escolhe a granularidade da série: "minute", "hour" ou "none".
func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		switch strings.ToLower(strings.TrimSpace(bucket)) {
		case "none", "off":
			s.bucket, s.stamp = "", ""
		case "hour":
			s.bucket, s.stamp = "hour", "2006010215"
		default:
			s.bucket, s.stamp = "minute", "200601021504"
		}
	}
}

// WithStatsTrackKeys liga o ranking de clientes mais negados.
func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.offenders = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "gateway:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
		stamp:  "200601021504",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	limiter := orUnknown(ev.Limiter)
	outcome := ev.Outcome()

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, s.prefix+":total", outcome, 1)

		limiterKey := s.prefix + ":limiter:" + limiter
		pipe.HIncrBy(ctx, limiterKey, outcome, 1)
		if !ev.Allowed && ev.Code != "" {
			pipe.HIncrBy(ctx, limiterKey, ev.Code, 1)
		}

		pipe.HIncrBy(ctx, s.prefix+":route:"+orUnknown(ev.Route), outcome, 1)

		if s.stamp != "" {
			bucketKey := s.prefix + ":" + s.bucket + ":" + at.UTC().Format(s.stamp)
			pipe.HIncrBy(ctx, bucketKey, limiter+":"+outcome, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, bucketKey, s.ttl)
			}
		}

		if s.offenders && !ev.Allowed && ev.Key != "" {
			offKey := s.prefix + ":offenders"
			pipe.ZIncrBy(ctx, offKey, 1, string(ev.Key))
			if s.ttl > 0 {
				pipe.Expire(ctx, offKey, s.ttl)
			}
		}
		return nil
	})
	return err
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "unknown"
	}
	return s
}
