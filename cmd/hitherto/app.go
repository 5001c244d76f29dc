package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hitherto/hitherto/internal/analyzers"
	"github.com/hitherto/hitherto/internal/bus"
	"github.com/hitherto/hitherto/internal/config"
	"github.com/hitherto/hitherto/internal/execution"
	"github.com/hitherto/hitherto/internal/fusion"
	"github.com/hitherto/hitherto/internal/history"
	"github.com/hitherto/hitherto/internal/module"
	"github.com/hitherto/hitherto/internal/observ"
	"github.com/hitherto/hitherto/internal/orchestrator"
	"github.com/hitherto/hitherto/internal/overseer"
	"github.com/hitherto/hitherto/internal/regime"
	"github.com/hitherto/hitherto/internal/risk"
	"github.com/hitherto/hitherto/internal/signal"
	"github.com/hitherto/hitherto/internal/store"
)

// App holds the wired pipeline and the resources that need closing.
type App struct {
	Orch  *orchestrator.Orchestrator
	Log   zerolog.Logger
	store store.Store
	redis *goredis.Client
}

func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Log.Warn().Err(err).Msg("redis close failed")
		}
	}
	if err := a.store.Close(); err != nil {
		a.Log.Warn().Err(err).Msg("store close failed")
	}
}

// buildApp assembles the full pipeline from config.
func buildApp(ctx context.Context, cfg config.Root) (*App, error) {
	log := observ.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	st, err := buildStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	router := bus.NewRouter(cfg.BusHistorySize, log)
	registry := module.NewRegistry(router, log)

	emits := map[string]signal.MessageType{}
	if block, ok := cfg.Analyzers["sentiment"]; ok {
		if err := registry.Register(analyzers.NewSentiment(), block); err != nil {
			return nil, err
		}
		emits["sentiment"] = signal.TypeSentiment
	}
	if block, ok := cfg.Analyzers["technical"]; ok {
		if err := registry.Register(analyzers.NewTechnical(), block); err != nil {
			return nil, err
		}
		emits["technical"] = signal.TypeTechnical
	}
	if block, ok := cfg.Analyzers["fundamental"]; ok {
		if err := registry.Register(analyzers.NewFundamental(), block); err != nil {
			return nil, err
		}
		emits["fundamental"] = signal.TypeFundamental
	}
	router.InstallDefaultRules(emits)

	classifier := regime.NewClassifier(st,
		cfg.Regime.DwellPeriods, cfg.Regime.ConfidenceThreshold,
		regime.Label(cfg.Regime.DefaultRegime), log,
	)
	if label, conf, err := st.ActiveRegime(ctx); err == nil {
		classifier.Restore(label, conf)
		log.Info().Str("regime", string(label)).Msg("regime restored from store")
	} else if !errors.Is(err, store.ErrNoRegime) {
		log.Warn().Err(err).Msg("regime restore failed, using default")
	}

	var returns history.Provider = history.NewStatic(cfg.Returns)
	var rdb *goredis.Client
	if cfg.Redis.Enabled {
		rdb = goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr})
		returns = history.NewRedisCache(returns, rdb, time.Duration(cfg.Redis.TTLSeconds)*time.Second, log)
	}

	riskEngine := risk.NewEngine(cfg.Risk, returns, nil, log)

	broker := execution.NewMockBroker(cfg.Execution.InitialCash, cfg.Execution.Slippage, cfg.Execution.CommissionRate, nil)
	execEngine := execution.NewEngine(cfg.Execution, broker, log)

	playbook := fusion.NewPlaybook(cfg.Playbook)
	builder := overseer.NewBuilder(cfg.Overseer, playbook, nil, log)

	orch := orchestrator.New(registry, router,
		regime.NewStatisticalDetector(), classifier,
		builder, riskEngine, execEngine, st, log)

	return &App{Orch: orch, Log: log, store: st, redis: rdb}, nil
}

func buildStore(ctx context.Context, cfg config.Store) (store.Store, error) {
	switch cfg.Driver {
	case "jsonl":
		return store.NewJSONL(cfg.Path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
