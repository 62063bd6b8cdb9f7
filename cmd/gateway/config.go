package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

type config struct {
	listenAddr     string
	backendURL     string
	maxUploadMB    int64
	jsonBodyKB     int64
	cookieSecure   bool
	metricsEnabled bool

	rateWindow time.Duration
	rateMax    int64
	burstMax   int64
	burstWin   time.Duration

	suspiciousMax        int64
	suspiciousWindow     time.Duration
	suspiciousSweepEvery time.Duration
	securityRulesFile    string

	rateKeyHeader string
	trustXFF      bool
	addHeaders    bool

	rateStore     string
	redisAddr     string
	redisPassword string
	redisDB       int
	redisPrefix   string

	rateStatsEnabled       bool
	rateStatsRedisAddr     string
	rateStatsRedisPassword string
	rateStatsRedisDB       int
	rateStatsPrefix        string
	rateStatsTTL           time.Duration
	rateStatsBucket        string
	rateStatsTrackKeys     bool
	rateStatsDebug         bool

	upstreamTimeout    time.Duration
	concurrencyMax     int
	concurrencyTimeout time.Duration

	logLevel  string
	logFormat string
}

// loadConfig lê .env (se existir) e depois o ambiente. Variáveis já
// definidas no ambiente ganham do arquivo.
func loadConfig() (config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config{}, fmt.Errorf("load .env: %w", err)
	}
	return readConfig(os.LookupEnv)
}

func readConfig(lookup func(string) (string, bool)) (config, error) {
	e := &env{lookup: lookup}
	cfg := config{}

	port := e.str("PORT", "8080")
	cfg.listenAddr = net.JoinHostPort(e.str("LISTEN_HOST", ""), port)
	cfg.backendURL = e.str("BACKEND_URL", "http://localhost:8000")
	cfg.maxUploadMB = e.int64("MAX_UPLOAD_MB", 10)
	cfg.jsonBodyKB = e.int64("JSON_BODY_LIMIT_KB", 1024)
	cfg.cookieSecure = e.bool("COOKIE_SECURE", false)
	cfg.metricsEnabled = e.bool("METRICS_ENABLED", true)

	cfg.rateWindow = e.duration("RATE_WINDOW", 5*time.Minute)
	cfg.rateMax = e.int64("RATE_MAX", 60)
	cfg.burstMax = e.int64("BURST_MAX", 20)
	cfg.burstWin = e.duration("BURST_WINDOW", time.Second)

	cfg.suspiciousMax = e.int64("SUSPICIOUS_MAX", 10)
	cfg.suspiciousWindow = e.duration("SUSPICIOUS_WINDOW", time.Minute)
	cfg.suspiciousSweepEvery = e.duration("SUSPICIOUS_SWEEP_EVERY", time.Minute)
	cfg.securityRulesFile = e.str("SECURITY_RULES_FILE", "")

	cfg.rateKeyHeader = e.str("RATE_KEY_HEADER", "")
	cfg.trustXFF = e.bool("TRUST_XFF", false)
	cfg.addHeaders = e.bool("ADD_RATELIMIT_HEADERS", false)

	cfg.rateStore = strings.ToLower(e.str("RATE_STORE", "memory"))
	cfg.redisAddr = e.str("REDIS_ADDR", "")
	cfg.redisPassword = e.str("REDIS_PASSWORD", "")
	cfg.redisDB = e.int("REDIS_DB", 0)
	cfg.redisPrefix = e.str("REDIS_PREFIX", "gateway:rl")

	cfg.rateStatsEnabled = e.bool("RATE_STATS_ENABLED", false)
	cfg.rateStatsRedisAddr = e.str("RATE_STATS_REDIS_ADDR", cfg.redisAddr)
	cfg.rateStatsRedisPassword = e.str("RATE_STATS_REDIS_PASSWORD", cfg.redisPassword)
	cfg.rateStatsRedisDB = e.int("RATE_STATS_REDIS_DB", cfg.redisDB)
	cfg.rateStatsPrefix = e.str("RATE_STATS_PREFIX", "gateway:stats")
	cfg.rateStatsTTL = e.duration("RATE_STATS_TTL", 24*time.Hour)
	cfg.rateStatsBucket = e.str("RATE_STATS_BUCKET", "minute")
	cfg.rateStatsTrackKeys = e.bool("RATE_STATS_TRACK_KEYS", false)
	cfg.rateStatsDebug = e.bool("RATE_STATS_DEBUG", false)

	cfg.upstreamTimeout = e.duration("UPSTREAM_TIMEOUT", 30*time.Second)
	cfg.concurrencyMax = e.int("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = e.duration("CONCURRENCY_TIMEOUT", 0)

	cfg.logLevel = e.str("LOG_LEVEL", "info")
	cfg.logFormat = e.str("LOG_FORMAT", "json")

	e.check(cfg.maxUploadMB > 0, "MAX_UPLOAD_MB must be > 0")
	e.check(cfg.jsonBodyKB > 0, "JSON_BODY_LIMIT_KB must be > 0")
	e.check(cfg.rateWindow > 0 && cfg.rateMax > 0, "RATE_WINDOW and RATE_MAX must be > 0")
	e.check(cfg.burstWin > 0 && cfg.burstMax > 0, "BURST_WINDOW and BURST_MAX must be > 0")
	e.check(cfg.suspiciousWindow > 0 && cfg.suspiciousMax > 0, "SUSPICIOUS_WINDOW and SUSPICIOUS_MAX must be > 0")
	e.check(cfg.suspiciousSweepEvery >= 0, "SUSPICIOUS_SWEEP_EVERY must be >= 0")
	e.check(cfg.upstreamTimeout > 0, "UPSTREAM_TIMEOUT must be > 0")
	e.check(cfg.concurrencyMax >= 0, "CONCURRENCY_MAX must be >= 0")
	e.check(cfg.rateStore == "memory" || cfg.rateStore == "redis", "RATE_STORE must be memory or redis")
	e.check(cfg.rateStore != "redis" || strings.TrimSpace(cfg.redisAddr) != "", "REDIS_ADDR is required when RATE_STORE=redis")
	e.check(!cfg.rateStatsEnabled || strings.TrimSpace(cfg.rateStatsRedisAddr) != "", "RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true")

	if err := errors.Join(e.errs...); err != nil {
		return config{}, err
	}
	return cfg, nil
}

// warnings lista combinações válidas mas arriscadas, logadas no startup.
func (c config) warnings() []string {
	var out []string
	if strings.TrimSpace(c.rateKeyHeader) != "" {
		out = append(out, "RATE_KEY_HEADER="+c.rateKeyHeader+" keys the rate limiters on a client-supplied header; "+
			"use it only behind a trusted proxy that overwrites the header, or clients can rotate it to bypass the limits")
	}
	if c.trustXFF {
		out = append(out, "TRUST_XFF=true keys the limiters on X-Forwarded-For; the edge proxy must overwrite it")
	}
	if c.rateStatsDebug {
		out = append(out, "RATE_STATS_DEBUG=true exposes /debug/ratelimit without authentication")
	}
	return out
}

// env acumula erros de conversão em vez de parar no primeiro, para a
// mensagem de startup listar tudo que está errado de uma vez.
type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) raw(k string) (string, bool) {
	v, ok := e.lookup(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) str(k, def string) string {
	if v, ok := e.raw(k); ok {
		return v
	}
	return def
}

func (e *env) int(k string, def int) int {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", k, v))
		return def
	}
	return i
}

func (e *env) int64(k string, def int64) int64 {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	i, err := cast.ToInt64E(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", k, v))
		return def
	}
	return i
}

func (e *env) bool(k string, def bool) bool {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid boolean %q", k, v))
		return def
	}
	return b
}

// duration aceita "5m", "1s" etc; número puro é lido como segundos.
func (e *env) duration(k string, def time.Duration) time.Duration {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	if secs, err := cast.ToInt64E(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid duration %q", k, v))
		return def
	}
	return d
}

func (e *env) check(ok bool, msg string) {
	if !ok {
		e.errs = append(e.errs, errors.New(msg))
	}
}
