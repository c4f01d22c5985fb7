// Command marketdata is the arb-pipeline entrypoint: it wires C1-C13 via
// go.uber.org/fx, the same dependency-injection shape the teacher's
// cmd/marketdata/main.go used, generalized here from a single gRPC service
// wiring to the full ingestion/cleaning/judging/orchestration stack.
package main

import (
	"context"
	"flag"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/arb-pipeline/internal/architecture/fx/workerpool"
	"github.com/abdoElHodaky/arb-pipeline/internal/bookstore"
	"github.com/abdoElHodaky/arb-pipeline/internal/cache"
	"github.com/abdoElHodaky/arb-pipeline/internal/cleaning"
	"github.com/abdoElHodaky/arb-pipeline/internal/config"
	"github.com/abdoElHodaky/arb-pipeline/internal/health"
	"github.com/abdoElHodaky/arb-pipeline/internal/manager"
	"github.com/abdoElHodaky/arb-pipeline/internal/marketstate"
	"github.com/abdoElHodaky/arb-pipeline/internal/opportunity"
	"github.com/abdoElHodaky/arb-pipeline/internal/orchestrator"
	"github.com/abdoElHodaky/arb-pipeline/internal/pool"
	"github.com/abdoElHodaky/arb-pipeline/internal/threshold"
	"github.com/abdoElHodaky/arb-pipeline/pkg/adapter"
	"github.com/abdoElHodaky/arb-pipeline/pkg/adapter/nats"
	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
	"github.com/abdoElHodaky/arb-pipeline/pkg/storage"
)

var configPath = flag.String("config", "", "directory containing config.yaml")

func main() {
	flag.Parse()

	app := fx.New(
		workerpool.Module,
		fx.Provide(
			loadConfig,
			config.InitLogger,
			newBookStore,
			newCache,
			newCleaningPipeline,
			newHealthMonitor,
			newOpportunityPool,
			newMarketStateJudge,
			newThreshold,
			newStore,
			newAdapters,
			newManager,
			newOrchestrator,
		),
		fx.Invoke(
			tuneRuntimeForLatency,
			registerSnapshotRecovery,
			runManager,
			runOrchestrator,
			startCollectors,
		),
	)

	app.Run()
}

func loadConfig() (*config.Config, error) {
	return config.Load(*configPath)
}

// tuneRuntimeForLatency applies the GC/GOMAXPROCS tuning this pipeline's
// 10ms orchestrator cadence (spec.md §4.13) needs to avoid stop-the-world
// pauses eating into the cycle budget.
func tuneRuntimeForLatency(logger *zap.Logger) {
	if err := config.TuneForLatency(); err != nil {
		logger.Warn("failed to apply latency-tuned GC settings", zap.Error(err))
	}
}

func newBookStore() *bookstore.Store {
	return bookstore.New()
}

func newCache(cfg *config.Config) (*cache.Cache, error) {
	dir := cfg.Cache.L2Directory
	if dir == "" {
		dir = "./data/cache/l2"
	}
	return cache.New(dir, nil)
}

func newCleaningPipeline(cfg *config.Config, pools *workerpool.WorkerPoolFactory) *cleaning.Pipeline {
	return cleaning.New(pool.NewManager(), pools, model.MaxPrice)
}

func newHealthMonitor() *health.Monitor {
	return health.NewMonitor(health.DefaultThresholds())
}

func newOpportunityPool() *opportunity.Pool {
	return opportunity.New()
}

func newMarketStateJudge(cfg *config.Config) *marketstate.Judge {
	weights := marketstate.DefaultWeights()
	ms := cfg.MarketState
	if ms.Weights.Volatility+ms.Weights.Liquidity+ms.Weights.Volume+ms.Weights.PriceChange+ms.Weights.APIHealth+ms.Weights.ExternalRisk > 0 {
		weights = marketstate.Weights{
			Volatility:   ms.Weights.Volatility,
			Liquidity:    ms.Weights.Liquidity,
			Volume:       ms.Weights.Volume,
			PriceChange:  ms.Weights.PriceChange,
			APIHealth:    ms.Weights.APIHealth,
			ExternalRisk: ms.Weights.ExternalRisk,
		}
	}
	return marketstate.New(weights, marketstate.Thresholds{
		VolatilityNormal:   ms.VolatilityNormalThreshold,
		VolatilityExtreme:  ms.VolatilityExtremeThreshold,
		LiquidityNormal:    ms.LiquidityNormalThreshold,
		LiquidityExtreme:   ms.LiquidityExtremeThreshold,
		VolumeSpike:        ms.VolumeSpikeThreshold,
		VolumeExtreme:      ms.VolumeExtremeThreshold,
		PriceChangeNormal:  ms.PriceChangeNormalThreshold,
		PriceChangeExtreme: ms.PriceChangeExtremeThreshold,
		APILatencyNormal:   ms.APILatencyNormalThreshold,
		APILatencyExtreme:  ms.APILatencyExtremeThreshold,
		IndicatorConsensus: ms.IndicatorConsensusCount,
		StateChangePersistence: time.Duration(ms.StateChangePersistenceMinutes) * time.Minute,
	})
}

func newThreshold(cfg *config.Config) *threshold.Threshold {
	def := threshold.DefaultConfig()
	def.BaseByState = map[model.MarketStateKind]float64{
		model.MarketNormal:   cfg.MinProfit.NormalMinProfit,
		model.MarketCautious: cfg.MinProfit.CautionMinProfit,
		model.MarketExtreme:  cfg.MinProfit.ExtremeMinProfit,
	}
	def.TargetSuccessRate = cfg.MinProfit.SuccessRateThreshold
	def.AdjustmentFactor = cfg.MinProfit.AdjustmentFactor
	return threshold.New(def)
}

func newStore(cfg *config.Config) (storage.Store, error) {
	dir := cfg.Cache.L3Directory
	if dir == "" {
		dir = "./data/cache/l3"
	}
	return storage.NewFileStore(dir)
}

func newAdapters(cfg *config.Config) manager.SourceSet {
	set := manager.SourceSet{}
	for _, ex := range cfg.Exchanges {
		set[ex.ID] = nats.New(ex.ID, ex.NATSURL, ex.Scale)
	}
	return set
}

func newManager(
	cfg *config.Config,
	logger *zap.Logger,
	books *bookstore.Store,
	c *cache.Cache,
	cleaner *cleaning.Pipeline,
	healthMon *health.Monitor,
	opportunities *opportunity.Pool,
	judge *marketstate.Judge,
	thresholds *threshold.Threshold,
	store storage.Store,
	adapters manager.SourceSet,
) *manager.Manager {
	return manager.New(cfg, logger, books, c, cleaner, healthMon, opportunities, judge, thresholds, store, adapters)
}

func newOrchestrator(
	logger *zap.Logger,
	books *bookstore.Store,
	judge *marketstate.Judge,
	thresholds *threshold.Threshold,
	pool *opportunity.Pool,
	healthMon *health.Monitor,
) *orchestrator.Orchestrator {
	// Strategy/risk/capital/execution are out of scope (spec.md §1
	// Non-goals); left nil so the orchestrator only judges state and
	// computes the adaptive threshold until an operator wires one in.
	return orchestrator.New(logger, books, judge, thresholds, pool, healthMon, nil, nil, nil, nil)
}

// registerSnapshotRecovery loads the last persisted system-state and
// performance-stats snapshots on startup and logs when either is absent.
// The loaded values are discarded: nothing is restored into the manager or
// the orchestrator.
func registerSnapshotRecovery(lc fx.Lifecycle, logger *zap.Logger, store storage.Store) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if _, err := store.LoadSystemState(); err != nil {
				logger.Info("no prior system state snapshot to recover", zap.Error(err))
			}
			if _, err := store.LoadPerformanceStats(); err != nil {
				logger.Info("no prior performance stats snapshot to recover", zap.Error(err))
			}
			return nil
		},
	})
}

func runManager(lc fx.Lifecycle, logger *zap.Logger, m *manager.Manager) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := m.Run(context.Background()); err != nil {
					logger.Error("central manager stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			m.Shutdown()
			return nil
		},
	})
}

func runOrchestrator(lc fx.Lifecycle, logger *zap.Logger, o *orchestrator.Orchestrator) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := o.Run(context.Background()); err != nil {
					logger.Info("orchestrator stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			o.Stop()
			return nil
		},
	})
}

// startCollectors connects every configured adapter once the manager's
// event loop is already running, so nothing is dropped before the manager
// is ready to receive it.
func startCollectors(lc fx.Lifecycle, logger *zap.Logger, m *manager.Manager, adapters manager.SourceSet) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for id, a := range adapters {
				if err := a.Connect(ctx); err != nil {
					logger.Warn("adapter connect failed at startup", zap.String("exchange", id), zap.Error(err))
					continue
				}
				go streamAdapter(m, a)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			for id, a := range adapters {
				if err := a.Close(); err != nil {
					logger.Warn("adapter close failed at shutdown", zap.String("exchange", id), zap.Error(err))
				}
			}
			return nil
		},
	})
}

func streamAdapter(m *manager.Manager, a adapter.Adapter) {
	for env := range a.Stream() {
		symbol, _ := env.Symbol()
		m.IngestEvent(a.ExchangeID(), symbol, env)
	}
}
