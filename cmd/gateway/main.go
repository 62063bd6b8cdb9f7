package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edge-gateway/gateway"
	"edge-gateway/logging"
	"edge-gateway/middleware/ratelimit/domain"
	"edge-gateway/middleware/ratelimit/infra"
	"edge-gateway/middleware/security"
	"edge-gateway/proxy"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error:\n%v\n", err)
		os.Exit(1)
	}

	zl, err := logging.New(cfg.logLevel, cfg.logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatalw("gateway stopped", "err", err)
	}
}

func run(ctx context.Context, cfg config, log *zap.SugaredLogger) error {
	for _, w := range cfg.warnings() {
		log.Warnw("risky configuration", "detail", w)
	}

	target, err := gateway.BackendURL(cfg.backendURL)
	if err != nil {
		return fmt.Errorf("invalid BACKEND_URL: %w", err)
	}

	rules := security.DefaultRules()
	if cfg.securityRulesFile != "" {
		if rules, err = security.LoadRules(cfg.securityRulesFile); err != nil {
			return err
		}
	}
	tracker := security.NewTracker(cfg.suspiciousWindow)
	janitor := infra.NewJanitor(log.With("component", "janitor"))

	var (
		windowStore domain.RateStore
		burstStore  domain.RateStore
	)
	switch cfg.rateStore {
	case "redis":
		rdb, err := connectRedis(ctx, cfg.redisAddr, cfg.redisPassword, cfg.redisDB, log)
		if err != nil {
			return fmt.Errorf("rate store: %w", err)
		}
		defer func() { _ = rdb.Close() }()
		windowStore = infra.NewRedisStore(rdb, infra.WithRedisPrefix(cfg.redisPrefix))
		burstStore = windowStore
	default:
		mem := infra.NewMemoryStore()
		if err := janitor.Every("window", cfg.rateWindow, mem); err != nil {
			return err
		}
		ttl, err := infra.NewTTLStore(cfg.burstWin, 0)
		if err != nil {
			return err
		}
		defer ttl.Close()
		windowStore, burstStore = mem, ttl
	}
	if err := janitor.Every("suspicious", cfg.suspiciousSweepEvery, tracker); err != nil {
		return err
	}

	stats := infra.MultiStatsStore{infra.NewPrometheusStatsStore()}
	if cfg.rateStatsEnabled {
		rdb, err := connectRedis(ctx, cfg.rateStatsRedisAddr, cfg.rateStatsRedisPassword, cfg.rateStatsRedisDB, log)
		if err != nil {
			return fmt.Errorf("rate stats: %w", err)
		}
		defer func() { _ = rdb.Close() }()
		stats = append(stats, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.rateStatsPrefix),
			infra.WithStatsTTL(cfg.rateStatsTTL),
			infra.WithStatsBucket(cfg.rateStatsBucket),
			infra.WithStatsTrackKeys(cfg.rateStatsTrackKeys),
		))
	}

	gcfg := gateway.DefaultConfig()
	gcfg.BackendURL = target
	gcfg.MaxUploadBytes = cfg.maxUploadMB << 20
	gcfg.JSONBodyLimit = cfg.jsonBodyKB << 10
	gcfg.Window = domain.Rule{Max: cfg.rateMax, Window: cfg.rateWindow}
	gcfg.Burst = domain.Rule{Max: cfg.burstMax, Window: cfg.burstWin}
	gcfg.SuspiciousMax = cfg.suspiciousMax
	gcfg.SuspiciousWindow = cfg.suspiciousWindow
	gcfg.CookieSecure = cfg.cookieSecure
	gcfg.KeyHeader = cfg.rateKeyHeader
	gcfg.TrustXFF = cfg.trustXFF
	gcfg.AddRateLimitHeaders = cfg.addHeaders
	gcfg.ConcurrencyMax = cfg.concurrencyMax
	gcfg.ConcurrencyTimeout = cfg.concurrencyTimeout
	gcfg.MetricsEnabled = cfg.metricsEnabled
	gcfg.StatsDebug = cfg.rateStatsDebug

	h := gateway.New(gcfg, gateway.Deps{
		WindowStore: windowStore,
		BurstStore:  burstStore,
		Stats:       stats,
		Classifier:  security.NewClassifier(rules),
		Tracker:     tracker,
		Transport:   proxy.NewTransport(cfg.upstreamTimeout),
		Logger:      log,
	})

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.upstreamTimeout + 30*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	janitor.Start(gctx)

	g.Go(func() error {
		log.Infow("gateway listening",
			"addr", cfg.listenAddr,
			"backend", target.String(),
			"rate_store", cfg.rateStore,
			"rate", fmt.Sprintf("%d/%s", cfg.rateMax, cfg.rateWindow),
			"burst", fmt.Sprintf("%d/%s", cfg.burstMax, cfg.burstWin),
			"suspicious", fmt.Sprintf("%d/%s", cfg.suspiciousMax, cfg.suspiciousWindow),
			"max_upload_mb", cfg.maxUploadMB,
			"concurrency_max", cfg.concurrencyMax,
			"rate_stats", cfg.rateStatsEnabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Infow("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// connectRedis tenta o PING com backoff exponencial antes de desistir, para
// o gateway não cair se subir junto com o Redis.
func connectRedis(ctx context.Context, addr, password string, db int, log *zap.SugaredLogger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return rdb.Ping(pingCtx).Err()
	}
	notify := func(err error, next time.Duration) {
		log.Warnw("redis not ready, retrying", "addr", addr, "err", err, "in", next.String())
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(bo, ctx), notify); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}
