package manager

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/arb-pipeline/internal/config"
	"github.com/abdoElHodaky/arb-pipeline/internal/health"
	"github.com/abdoElHodaky/arb-pipeline/internal/messaging"
	pipelineerrors "github.com/abdoElHodaky/arb-pipeline/pkg/errors"
	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
)

// handleDataEvent routes one adapter envelope through the cleaning
// pipeline and into C8/C4 (spec.md §4.12 "route to cleaner; on success,
// update C8, push to C3/C4, forward ... for anomaly detection").
func (m *Manager) handleDataEvent(ctx context.Context, ev dataEvent) {
	src := m.healthMon.Source(ev.ExchangeID)
	start := time.Now()
	env := ev.Envelope

	switch env.GetKind() {
	case messaging.KindSnapshot:
		m.handleSnapshot(ctx, ev, src, start)
	case messaging.KindUpdate:
		m.handleUpdate(ctx, ev, src, start)
	case messaging.KindTrade:
		if env.Trade != nil {
			if err := m.cache.Set(tradeCacheKey(ev.ExchangeID, ev.Symbol), *env.Trade); err != nil {
				m.logger.Warn("trade cache write failed", zap.Error(err))
			}
		}
		m.markReady()
	case messaging.KindSystem:
		if env.System != nil {
			m.logger.Info("adapter system notice",
				zap.String("component", env.System.Component),
				zap.String("level", env.System.Level),
				zap.String("message", env.System.Message))
		}
	case messaging.KindError:
		if env.Error != nil {
			m.logger.Warn("adapter error notice",
				zap.String("code", env.Error.Code),
				zap.String("message", env.Error.Message),
				zap.String("source", env.Error.Source))
		}
		src.RecordError(ctx)
	}
}

func (m *Manager) handleSnapshot(ctx context.Context, ev dataEvent, src *health.Source, start time.Time) {
	snap := ev.Envelope.Snapshot
	if snap == nil || snap.OrderBook == nil {
		return
	}
	result, err := m.cleaner.CleanFast(ev.ExchangeID, ev.Symbol, snap.OrderBook.Bids, snap.OrderBook.Asks, snap.TimestampNs)
	if err != nil {
		// Path A failed: downgrade to Path C before dropping the snapshot
		result, err = m.cleaner.CleanSafe(ev.ExchangeID, ev.Symbol, snap.OrderBook.Bids, snap.OrderBook.Asks, snap.TimestampNs)
	}
	if err != nil {
		src.RecordError(ctx)
		m.logger.Warn("cleaning rejected snapshot", zap.String("exchange", ev.ExchangeID), zap.String("symbol", ev.Symbol), zap.Error(err))
		return
	}
	m.books.Put(result.Book)
	m.finishIngress(ctx, ev, src, start, result.Book)
}

func (m *Manager) handleUpdate(ctx context.Context, ev dataEvent, src *health.Source, start time.Time) {
	upd := ev.Envelope.Update
	if upd == nil {
		return
	}
	key := model.BookKey{ExchangeID: ev.ExchangeID, Symbol: ev.Symbol}
	existing := m.books.Get(key)

	var lastApplied uint64
	var bids, asks []model.OrderBookEntry
	if existing != nil {
		lastApplied = existing.Sequence
		bids = existing.Bids
		asks = existing.Asks
	}

	if existing == nil || !upd.Contiguous(lastApplied) {
		m.books.MarkInconsistent(key)
		protoErr := pipelineerrors.New(pipelineerrors.KindProtocol, pipelineerrors.CodeNonContiguous, "non-contiguous update, requesting resync").
			WithDetail("exchange", ev.ExchangeID).WithDetail("symbol", ev.Symbol)
		m.logger.Warn("order book update non-contiguous", zap.Error(protoErr))
		m.requestResync(ctx, ev.ExchangeID, ev.Symbol)
		src.RecordError(ctx)
		return
	}

	mergedBids := model.ApplyDelta(bids, upd.BidsDelta, true)
	mergedAsks := model.ApplyDelta(asks, upd.AsksDelta, false)

	result, err := m.cleaner.CleanSafe(ev.ExchangeID, ev.Symbol, mergedBids, mergedAsks, time.Now().UnixNano())
	if err != nil {
		src.RecordError(ctx)
		m.logger.Warn("cleaning rejected update", zap.String("exchange", ev.ExchangeID), zap.String("symbol", ev.Symbol), zap.Error(err))
		return
	}
	result.Book.Sequence = upd.FinalUpdateID
	result.Book.HasSequence = true
	m.books.Put(result.Book)
	m.finishIngress(ctx, ev, src, start, result.Book)
}

func (m *Manager) finishIngress(ctx context.Context, ev dataEvent, src *health.Source, start time.Time, book *model.OrderBook) {
	latencyNs := float64(time.Since(start).Nanoseconds())
	src.RecordLatency(ctx, latencyNs)
	m.markReady()
	if err := m.cache.Set(bookCacheKey(ev.ExchangeID, ev.Symbol), book); err != nil {
		m.logger.Warn("book cache write failed", zap.Error(err))
	}
}

// requestResync asks the owning adapter for a fresh snapshot after a
// protocol-kind error (spec.md §4.7 "local recovery via resync").
func (m *Manager) requestResync(ctx context.Context, exchangeID, symbol string) {
	m.adaptersMu.RLock()
	a, ok := m.adapters[exchangeID]
	m.adaptersMu.RUnlock()
	if !ok {
		return
	}
	_, err := m.healthMon.Source(exchangeID).Gate(func() (interface{}, error) {
		return nil, a.Resync(ctx, symbol)
	})
	if err != nil {
		m.logger.Warn("resync request failed", zap.String("exchange", exchangeID), zap.String("symbol", symbol), zap.Error(err))
	}
}

// handleConfig swaps in a newly validated config and calls Invalidate for
// each threshold state, which is a no-op. The Threshold and the market-state
// Judge keep the settings they were constructed with: a new config's
// min_profit and market_state values do not reach them.
func (m *Manager) handleConfig(cfg *config.Config) {
	m.cfgMu.Lock()
	m.cfg = cfg
	m.cfgMu.Unlock()

	for _, state := range []model.MarketStateKind{model.MarketNormal, model.MarketCautious, model.MarketExtreme} {
		m.thresholds.Invalidate(state)
	}
	m.logger.Info("central manager applied new config", zap.String("schema_version", cfg.SchemaVersion))
}
