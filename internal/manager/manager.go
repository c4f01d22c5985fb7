// Package manager implements C12, the Central Manager: a single-owner
// event loop that serializes every mutation to shared pipeline state and
// answers read queries from operators (spec.md §4.12).
//
// Grounded on the teacher's pkg/common/service_base.go lifecycle shape
// (Start/Stop/Health, a BaseService embedded here for the start/stop/health
// bookkeeping every component in this repo shares) and on
// cmd/marketdata/main.go's original select-loop-over-channels wiring, now
// rebuilt around this repo's C2-C11 components instead of the deleted
// order/risk subsystem.
package manager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/arb-pipeline/internal/bookstore"
	"github.com/abdoElHodaky/arb-pipeline/internal/cache"
	"github.com/abdoElHodaky/arb-pipeline/internal/cleaning"
	"github.com/abdoElHodaky/arb-pipeline/internal/config"
	"github.com/abdoElHodaky/arb-pipeline/internal/health"
	"github.com/abdoElHodaky/arb-pipeline/internal/marketstate"
	"github.com/abdoElHodaky/arb-pipeline/internal/messaging"
	"github.com/abdoElHodaky/arb-pipeline/internal/opportunity"
	"github.com/abdoElHodaky/arb-pipeline/internal/threshold"
	"github.com/abdoElHodaky/arb-pipeline/pkg/adapter"
	"github.com/abdoElHodaky/arb-pipeline/pkg/common"
	pipelineerrors "github.com/abdoElHodaky/arb-pipeline/pkg/errors"
	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
	"github.com/abdoElHodaky/arb-pipeline/pkg/storage"
)

// CommandKind enumerates the management API from spec.md §6.
type CommandKind string

const (
	CmdReconfigure              CommandKind = "reconfigure"
	CmdStartCollectors          CommandKind = "start_collectors"
	CmdPauseTrading             CommandKind = "pause_trading"
	CmdResumeTrading            CommandKind = "resume_trading"
	CmdEnableStrategy           CommandKind = "enable_strategy"
	CmdDisableStrategy          CommandKind = "disable_strategy"
	CmdUpdateConfig             CommandKind = "update_config"
	CmdEnterMaintenanceMode     CommandKind = "enter_maintenance_mode"
	CmdExitMaintenanceMode      CommandKind = "exit_maintenance_mode"
	CmdTriggerOpportunityDetect CommandKind = "trigger_opportunity_detection"
	CmdCleanupExpiredData       CommandKind = "cleanup_expired_data"
	CmdResetStatistics          CommandKind = "reset_statistics"
	CmdPerformHealthCheck       CommandKind = "perform_health_check"
	CmdGetLatestOrderbook       CommandKind = "get_latest_orderbook"
	CmdGetAllOrderbooks         CommandKind = "get_all_orderbooks"
	CmdGetPerformanceStats      CommandKind = "get_performance_stats"
	CmdShutdown                 CommandKind = "shutdown"
)

// Command is one operator request, carrying its own one-shot reply channel
// (spec.md §6 "each command has a correlation id; responses are delivered
// on a one-shot reply channel").
type Command struct {
	Kind          CommandKind
	CorrelationID string
	Payload       interface{}
	Reply         chan CommandResult
}

// CommandResult is the outcome of one Command.
type CommandResult struct {
	Value interface{}
	Err   error
}

// UpdateConfigPayload is CmdUpdateConfig's dotted-path write (spec.md §6).
type UpdateConfigPayload struct {
	Key   string
	Value string
}

// SourceSet maps an exchange id to the adapter serving it, used by
// CmdReconfigure to atomically swap the active source set.
type SourceSet map[string]adapter.Adapter

type dataEvent struct {
	ExchangeID string
	Symbol     string
	Envelope   *messaging.Envelope
}

const (
	commandChannelCapDefault = 256
	dataEventCapDefault      = 4096
	shutdownDrainDeadline    = 5 * time.Second
	snapshotPersistInterval  = 30 * time.Second
)

// Manager is C12. One instance owns all mutable pipeline state; every
// mutation flows through Run's select loop, read queries go through
// SubmitCommand, and data ingress goes through IngestEvent.
type Manager struct {
	*common.BaseService

	logger *zap.Logger

	books         *bookstore.Store
	cache         *cache.Cache
	cleaner       *cleaning.Pipeline
	healthMon     *health.Monitor
	opportunities *opportunity.Pool
	judge         *marketstate.Judge
	thresholds    *threshold.Threshold
	store         storage.Store

	detectionHook func(ctx context.Context) error

	adaptersMu sync.RWMutex
	adapters   SourceSet

	commands   chan Command
	dataEvents chan dataEvent
	configCh   chan *config.Config
	shutdownCh chan struct{}
	stopOnce   sync.Once

	ready         atomic.Bool
	tradingPaused atomic.Bool
	maintenance   atomic.Bool

	strategiesMu      sync.Mutex
	enabledStrategies map[string]bool

	cfgMu sync.RWMutex
	cfg   *config.Config

	stateMu     sync.Mutex
	systemState model.SystemState
	perfStats   model.PerformanceStats
}

// New constructs a Manager. adapters is the initial source set; it may be
// empty and populated later via CmdReconfigure/CmdStartCollectors.
func New(
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
	adapters SourceSet,
) *Manager {
	cmdCap := commandChannelCapDefault
	evCap := dataEventCapDefault
	if cfg != nil {
		if cfg.Performance.CommandChannelSize > 0 {
			cmdCap = cfg.Performance.CommandChannelSize
		}
		if cfg.CentralManager.EventBufferSize > 0 {
			evCap = cfg.CentralManager.EventBufferSize
		}
	}
	if adapters == nil {
		adapters = SourceSet{}
	}
	return &Manager{
		BaseService:       common.NewBaseService("central-manager", "1.0.0", logger),
		logger:            logger,
		books:             books,
		cache:             c,
		cleaner:           cleaner,
		healthMon:         healthMon,
		opportunities:     opportunities,
		judge:             judge,
		thresholds:        thresholds,
		store:             store,
		adapters:          adapters,
		commands:          make(chan Command, cmdCap),
		dataEvents:        make(chan dataEvent, evCap),
		configCh:          make(chan *config.Config, 1),
		shutdownCh:        make(chan struct{}),
		enabledStrategies: make(map[string]bool),
		cfg:               cfg,
	}
}

// SetDetectionHook wires the (external) strategy engine's one-shot
// detection entry point, invoked by CmdTriggerOpportunityDetect. Left
// unset, that command returns an error: opportunity detection itself is
// out of scope for this repo (spec.md §1).
func (m *Manager) SetDetectionHook(hook func(ctx context.Context) error) {
	m.detectionHook = hook
}

// IngestEvent is the adapter-facing entry point for C3/ring-buffer-drained
// market data. It never blocks the adapter: a full data_events channel
// drops the oldest queued event in favor of the new one (spec.md §5
// "channel overflow drops the oldest ... prefers freshness over
// completeness").
func (m *Manager) IngestEvent(exchangeID, symbol string, env *messaging.Envelope) {
	ev := dataEvent{ExchangeID: exchangeID, Symbol: symbol, Envelope: env}
	select {
	case m.dataEvents <- ev:
		return
	default:
	}
	select {
	case <-m.dataEvents:
	default:
	}
	select {
	case m.dataEvents <- ev:
	default:
	}
}

// SubmitCommand enqueues an operator command and waits for its reply,
// honoring ctx cancellation. A full command channel is a transient-ingress
// error: the command channel backs the management API, never the data
// path, so backpressure here is surfaced to the caller instead of dropped.
func (m *Manager) SubmitCommand(ctx context.Context, kind CommandKind, correlationID string, payload interface{}) (interface{}, error) {
	cmd := Command{Kind: kind, CorrelationID: correlationID, Payload: payload, Reply: make(chan CommandResult, 1)}
	select {
	case m.commands <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		return nil, pipelineerrors.New(pipelineerrors.KindTransientIngress, pipelineerrors.CodeBufferFull, "command channel full").WithDetail("kind", string(kind))
	}
	select {
	case res := <-cmd.Reply:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ready reports whether the first successful ingress has landed yet
// (spec.md §4.12 "readiness watch").
func (m *Manager) Ready() bool { return m.ready.Load() }

// Run is the single-owner select loop (spec.md §4.12). It returns once
// Shutdown has been requested and drained, or ctx is canceled.
func (m *Manager) Run(ctx context.Context) error {
	persistTicker := time.NewTicker(snapshotPersistInterval)
	defer persistTicker.Stop()

	for {
		// shutdown always wins
		select {
		case <-m.shutdownCh:
			return m.drainAndShutdown()
		case <-ctx.Done():
			return m.drainAndShutdown()
		default:
		}

		// commands next, ahead of config/data
		select {
		case <-m.shutdownCh:
			return m.drainAndShutdown()
		case <-ctx.Done():
			return m.drainAndShutdown()
		case cmd := <-m.commands:
			m.handleCommand(ctx, cmd)
			continue
		default:
		}

		// config ahead of data
		select {
		case cfg := <-m.configCh:
			m.handleConfig(cfg)
			continue
		default:
		}

		select {
		case <-m.shutdownCh:
			return m.drainAndShutdown()
		case <-ctx.Done():
			return m.drainAndShutdown()
		case cmd := <-m.commands:
			m.handleCommand(ctx, cmd)
		case cfg := <-m.configCh:
			m.handleConfig(cfg)
		case ev := <-m.dataEvents:
			m.handleDataEvent(ctx, ev)
		case <-persistTicker.C:
			m.persistSnapshot()
		}
	}
}

// Shutdown requests a graceful stop; safe to call more than once and from
// any goroutine.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.shutdownCh) })
}

func (m *Manager) drainAndShutdown() error {
	m.logger.Info("central manager shutting down")

	deadline := time.After(shutdownDrainDeadline)
drain:
	for {
		select {
		case cmd := <-m.commands:
			if cmd.Kind == CmdShutdown {
				continue
			}
			m.handleCommand(context.Background(), cmd)
		case <-deadline:
			break drain
		default:
			break drain
		}
	}

	m.adaptersMu.RLock()
	for id, a := range m.adapters {
		if err := a.Close(); err != nil {
			m.logger.Warn("error closing adapter during shutdown", zap.String("exchange", id), zap.Error(err))
		}
	}
	m.adaptersMu.RUnlock()

	m.persistSnapshot()
	m.logger.Info("central manager stopped")
	return nil
}

func (m *Manager) persistSnapshot() {
	if m.store == nil {
		return
	}
	state, stats := m.snapshotCounters()
	if err := m.store.SaveSystemState(state); err != nil {
		m.logger.Warn("failed to persist system state", zap.Error(err))
	}
	if err := m.store.SavePerformanceStats(stats); err != nil {
		m.logger.Warn("failed to persist performance stats", zap.Error(err))
	}
}

func (m *Manager) snapshotCounters() (model.SystemState, model.PerformanceStats) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.systemState.CurrentMarketState = m.effectiveMarketState()
	return m.systemState, m.perfStats
}

func (m *Manager) effectiveMarketState() model.MarketStateKind {
	if m.maintenance.Load() {
		return model.MarketMaintenance
	}
	if m.tradingPaused.Load() {
		return model.MarketClosed
	}
	return m.judge.Current().ToModelKind()
}

func (m *Manager) markReady() {
	if m.ready.CompareAndSwap(false, true) {
		m.logger.Info("central manager ready: first successful ingress observed")
	}
}

func tradeCacheKey(exchangeID, symbol string) string {
	return fmt.Sprintf("trade:%s:%s", exchangeID, symbol)
}

func bookCacheKey(exchangeID, symbol string) string {
	return fmt.Sprintf("book:%s:%s", exchangeID, symbol)
}
