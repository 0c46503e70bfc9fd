package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/gazette-cli/internal/batch"
	"github.com/sells-group/gazette-cli/internal/cache"
	"github.com/sells-group/gazette-cli/internal/extract"
	"github.com/sells-group/gazette-cli/internal/matcher"
	"github.com/sells-group/gazette-cli/internal/monitoring"
	"github.com/sells-group/gazette-cli/internal/scorer"
	"github.com/sells-group/gazette-cli/internal/store"
)

// scanEnv holds everything the scan and match commands need.
type scanEnv struct {
	Store   store.Store  // nil when history is disabled
	Cache   *cache.Cache // nil when caching is disabled
	Metrics *monitoring.Metrics
	Factory batch.PipelineFactory
}

// Close releases resources held by the environment.
func (e *scanEnv) Close() {
	if e.Cache != nil {
		_ = e.Cache.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initScan validates configuration and builds the per-worker pipeline
// factory. It fails before any document is touched when no extraction
// backend is available. Callers should defer env.Close().
func initScan(ctx context.Context, useCache bool) (*scanEnv, error) {
	if err := cfg.Validate("scan"); err != nil {
		return nil, err
	}
	if err := scorer.ValidateConfig(cfg.Scoring); err != nil {
		return nil, err
	}

	// Strategies are shared so the Mistral limiter and breaker apply to the
	// whole batch; each worker gets its own engine around them.
	strategies := extract.DefaultStrategies(cfg.Extract, cfg.Mistral, extract.ExecRunner())
	probe, err := extract.NewWithStrategies(cfg.Extract, strategies...)
	if err != nil {
		return nil, err
	}
	zap.L().Info("extraction strategies available", zap.Strings("strategies", probe.Strategies()))

	env := &scanEnv{Metrics: monitoring.Default()}

	if useCache && cfg.Cache.Enabled {
		c, err := cache.Open(cfg.Cache, env.Metrics)
		if err != nil {
			return nil, err
		}
		env.Cache = c
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Store = st

	sc := scorer.New(cfg.Scoring)
	var textCache batch.TextCache
	if env.Cache != nil {
		textCache = env.Cache
	}
	env.Factory = func() (*batch.Pipeline, error) {
		engine, err := extract.NewWithStrategies(cfg.Extract, strategies...)
		if err != nil {
			return nil, err
		}
		return batch.NewPipeline(engine, textCache, matcher.New(), sc, env.Metrics), nil
	}

	return env, nil
}

// openStore opens the configured run store, which must be enabled.
func openStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	return store.Open(ctx, cfg.Store)
}

// openCache opens the configured text cache for the cache subcommands.
func openCache() (*cache.Cache, error) {
	if err := cfg.Validate("cache"); err != nil {
		return nil, err
	}
	return cache.Open(cfg.Cache, monitoring.Default())
}
