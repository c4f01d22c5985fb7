package manager

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/arb-pipeline/internal/config"
	pipelineerrors "github.com/abdoElHodaky/arb-pipeline/pkg/errors"
	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
)

// handleCommand dispatches one operator command and always replies exactly
// once on cmd.Reply (spec.md §6 "responses are delivered on a one-shot
// reply channel").
func (m *Manager) handleCommand(ctx context.Context, cmd Command) {
	var result CommandResult
	switch cmd.Kind {
	case CmdReconfigure:
		result = m.doReconfigure(cmd.Payload)
	case CmdStartCollectors:
		result = m.doStartCollectors(ctx)
	case CmdPauseTrading:
		m.tradingPaused.Store(true)
	case CmdResumeTrading:
		m.tradingPaused.Store(false)
	case CmdEnableStrategy:
		result = m.doSetStrategy(cmd.Payload, true)
	case CmdDisableStrategy:
		result = m.doSetStrategy(cmd.Payload, false)
	case CmdUpdateConfig:
		result = m.doUpdateConfig(cmd.Payload)
	case CmdEnterMaintenanceMode:
		m.maintenance.Store(true)
	case CmdExitMaintenanceMode:
		m.maintenance.Store(false)
	case CmdTriggerOpportunityDetect:
		result = m.doTriggerDetection(ctx)
	case CmdCleanupExpiredData:
		result = m.doCleanupExpiredData()
	case CmdResetStatistics:
		m.doResetStatistics()
	case CmdPerformHealthCheck:
		result.Value = m.healthMon.Snapshot()
	case CmdGetLatestOrderbook:
		result = m.doGetLatestOrderbook(cmd.Payload)
	case CmdGetAllOrderbooks:
		result.Value = m.books.Snapshot()
	case CmdGetPerformanceStats:
		_, stats := m.snapshotCounters()
		result.Value = stats
	case CmdShutdown:
		m.Shutdown()
	default:
		result.Err = pipelineerrors.Newf(pipelineerrors.KindInternal, pipelineerrors.CodeChannelClosed, "unrecognized command kind %q", cmd.Kind)
	}

	select {
	case cmd.Reply <- result:
	default:
		// caller already gave up waiting; nothing else to do.
	}
}

func (m *Manager) doReconfigure(payload interface{}) CommandResult {
	sources, ok := payload.(SourceSet)
	if !ok {
		return CommandResult{Err: pipelineerrors.New(pipelineerrors.KindConfig, pipelineerrors.CodeInvalidSchema, "reconfigure payload must be a SourceSet")}
	}

	m.adaptersMu.Lock()
	old := m.adapters
	m.adapters = sources
	m.adaptersMu.Unlock()

	for id, a := range old {
		if _, keep := sources[id]; !keep {
			if err := a.Close(); err != nil {
				m.logger.Warn("error closing replaced adapter", zap.String("exchange", id), zap.Error(err))
			}
		}
	}
	return CommandResult{Value: len(sources)}
}

func (m *Manager) doStartCollectors(ctx context.Context) CommandResult {
	m.adaptersMu.RLock()
	defer m.adaptersMu.RUnlock()

	var firstErr error
	for id, a := range m.adapters {
		if err := a.Connect(ctx); err != nil {
			m.logger.Warn("adapter connect failed", zap.String("exchange", id), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return CommandResult{Value: len(m.adapters), Err: firstErr}
}

func (m *Manager) doSetStrategy(payload interface{}, enabled bool) CommandResult {
	name, ok := payload.(string)
	if !ok || name == "" {
		return CommandResult{Err: pipelineerrors.New(pipelineerrors.KindConfig, pipelineerrors.CodeInvalidSchema, "strategy name required")}
	}
	m.strategiesMu.Lock()
	m.enabledStrategies[name] = enabled
	m.strategiesMu.Unlock()
	return CommandResult{Value: enabled}
}

// doUpdateConfig applies a dotted-path write against the active config
// (spec.md §6 "dotted-path config write, validated"). Only the schema
// subset listed in spec.md §6 is writable; anything else is rejected.
func (m *Manager) doUpdateConfig(payload interface{}) CommandResult {
	p, ok := payload.(UpdateConfigPayload)
	if !ok {
		return CommandResult{Err: pipelineerrors.New(pipelineerrors.KindConfig, pipelineerrors.CodeInvalidSchema, "update_config payload malformed")}
	}

	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	if m.cfg == nil {
		return CommandResult{Err: pipelineerrors.New(pipelineerrors.KindConfig, pipelineerrors.CodeInvalidSchema, "no active config to update")}
	}
	next := *m.cfg

	if err := applyDottedPath(&next, p.Key, p.Value); err != nil {
		return CommandResult{Err: err}
	}

	m.cfg = &next
	select {
	case m.configCh <- &next:
	default:
		<-m.configCh
		m.configCh <- &next
	}
	return CommandResult{Value: p.Key}
}

func applyDottedPath(cfg *config.Config, key, value string) error {
	switch key {
	case "min_profit.normal_min_profit":
		return setFloat(&cfg.MinProfit.NormalMinProfit, value)
	case "min_profit.caution_min_profit":
		return setFloat(&cfg.MinProfit.CautionMinProfit, value)
	case "min_profit.extreme_min_profit":
		return setFloat(&cfg.MinProfit.ExtremeMinProfit, value)
	case "min_profit.success_rate_threshold":
		return setFloat(&cfg.MinProfit.SuccessRateThreshold, value)
	case "min_profit.adjustment_factor":
		return setFloat(&cfg.MinProfit.AdjustmentFactor, value)
	case "quality_thresholds.max_batch_size":
		return setInt(&cfg.QualityThresholds.MaxBatchSize, value)
	case "quality_thresholds.max_orderbook_count":
		return setInt(&cfg.QualityThresholds.MaxOrderbookCount, value)
	case "market_state.state_change_persistence_minutes":
		return setInt(&cfg.MarketState.StateChangePersistenceMinutes, value)
	case "market_state.indicator_consensus_count":
		return setInt(&cfg.MarketState.IndicatorConsensusCount, value)
	case "log_level":
		cfg.LogLevel = value
		return nil
	default:
		return pipelineerrors.Newf(pipelineerrors.KindConfig, pipelineerrors.CodeInvalidSchema, "unknown or non-writable config key %q", key)
	}
}

func setFloat(dst *float64, raw string) error {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return pipelineerrors.Wrapf(err, pipelineerrors.KindConfig, pipelineerrors.CodeInvalidSchema, "parsing float value %q", raw)
	}
	*dst = v
	return nil
}

func setInt(dst *int, raw string) error {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return pipelineerrors.Wrapf(err, pipelineerrors.KindConfig, pipelineerrors.CodeInvalidSchema, "parsing int value %q", raw)
	}
	*dst = v
	return nil
}

func (m *Manager) doTriggerDetection(ctx context.Context) CommandResult {
	if m.detectionHook == nil {
		return CommandResult{Err: pipelineerrors.New(pipelineerrors.KindInternal, pipelineerrors.CodeChannelClosed, "no strategy engine wired")}
	}
	return CommandResult{Err: m.detectionHook(ctx)}
}

func (m *Manager) doCleanupExpiredData() CommandResult {
	swept := m.opportunities.Sweep(time.Now().UnixNano())
	return CommandResult{Value: swept}
}

func (m *Manager) doResetStatistics() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.systemState = model.SystemState{}
	m.perfStats = model.PerformanceStats{}
}

func (m *Manager) doGetLatestOrderbook(payload interface{}) CommandResult {
	key, ok := payload.(model.BookKey)
	if !ok {
		return CommandResult{Err: pipelineerrors.New(pipelineerrors.KindConfig, pipelineerrors.CodeInvalidSchema, "get_latest_orderbook payload must be a model.BookKey")}
	}
	book := m.books.Get(key)
	if book == nil {
		return CommandResult{Err: pipelineerrors.DataUnavailable("order book " + key.ExchangeID + "/" + key.Symbol)}
	}
	return CommandResult{Value: book}
}
