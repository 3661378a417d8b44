package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"pkt.systems/pslog"

	"github.com/AgentMesh-Net/salesdesk/internal/config"
	"github.com/AgentMesh-Net/salesdesk/internal/confirm"
	"github.com/AgentMesh-Net/salesdesk/internal/crm"
	"github.com/AgentMesh-Net/salesdesk/internal/metrics"
	"github.com/AgentMesh-Net/salesdesk/internal/store"
	"github.com/AgentMesh-Net/salesdesk/internal/tax"
	"github.com/AgentMesh-Net/salesdesk/internal/telemetry"
	"github.com/AgentMesh-Net/salesdesk/migrations"
)

const cacheNamespace = "confirm"

// runtime holds the wired services and what must be released on exit.
type runtime struct {
	registry *prometheus.Registry
	crm      *crm.Service
	tax      *tax.Service
	closers  []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func build(ctx context.Context, cfg config.Config, logger pslog.Logger) (*runtime, error) {
	rt := &runtime{registry: prometheus.NewRegistry()}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()
	rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(rt.registry)

	shutdown, err := telemetry.Setup(ctx, cfg.OTelEndpoint, cfg.ServiceName, logger)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("telemetry.shutdown.failed", "error", err)
		}
	})

	repo, err := openStore(ctx, cfg, logger, rt)
	if err != nil {
		return nil, err
	}
	cache, err := openCache(ctx, cfg, logger, rt)
	if err != nil {
		return nil, err
	}

	gate := confirm.NewGate(cache, cfg.ConfirmTTL, logger, m)
	rt.crm = crm.New(repo, gate, logger, m)
	rt.tax = tax.New(repo, logger, m)
	ok = true
	return rt, nil
}

func openStore(ctx context.Context, cfg config.Config, logger pslog.Logger, rt *runtime) (store.Store, error) {
	if cfg.Store == config.StoreMemory {
		mem := store.NewMemory()
		store.SeedDemo(mem, time.Now())
		logger.Warn("store.memory", "detail", "serving seeded demo data; changes are lost on exit")
		return mem, nil
	}
	pool, err := store.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt.closers = append(rt.closers, pool.Close)
	if cfg.Migrate {
		if err := store.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			return nil, err
		}
	}
	return store.NewPostgresStore(pool), nil
}

func openCache(ctx context.Context, cfg config.Config, logger pslog.Logger, rt *runtime) (confirm.Cache, error) {
	if cfg.RedisURL == "" {
		mc := confirm.NewMemoryCache(cacheNamespace)
		jctx, cancel := context.WithCancel(context.Background())
		go mc.Run(jctx, time.Minute)
		rt.closers = append(rt.closers, cancel)
		logger.Info("confirm.cache", "backend", "memory", "ttl", cfg.ConfirmTTL.String())
		return mc, nil
	}
	client, err := confirm.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	rt.closers = append(rt.closers, func() { _ = client.Close() })
	logger.Info("confirm.cache", "backend", "redis", "ttl", cfg.ConfirmTTL.String())
	return confirm.NewRedisCache(client, cacheNamespace), nil
}
