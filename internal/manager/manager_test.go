package manager

import (
	"context"
	"testing"
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
	"github.com/abdoElHodaky/arb-pipeline/internal/pool"
	"github.com/abdoElHodaky/arb-pipeline/internal/threshold"
	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
	"github.com/abdoElHodaky/arb-pipeline/pkg/storage"
)

type fakeAdapter struct {
	id          string
	connected   bool
	resyncCalls int
	closed      bool
}

func (f *fakeAdapter) ExchangeID() string { return f.id }
func (f *fakeAdapter) Connect(ctx context.Context) error {
	f.connected = true
	return nil
}
func (f *fakeAdapter) Subscribe(ctx context.Context, symbols []string) error { return nil }
func (f *fakeAdapter) Stream() <-chan *messaging.Envelope                   { return nil }
func (f *fakeAdapter) Resync(ctx context.Context, symbol string) error {
	f.resyncCalls++
	return nil
}
func (f *fakeAdapter) IsConnected() bool { return f.connected }
func (f *fakeAdapter) Close() error {
	f.closed = true
	return nil
}

func newTestManager(t *testing.T) (*Manager, *fakeAdapter) {
	t.Helper()
	logger := zap.NewNop()
	cfg := &config.Config{}
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error constructing file store: %v", err)
	}
	c, err := cache.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("unexpected error constructing cache: %v", err)
	}
	ad := &fakeAdapter{id: "binance"}
	m := New(
		cfg,
		logger,
		bookstore.New(),
		c,
		cleaning.New(pool.NewManager(), nil, model.MaxPrice),
		health.NewMonitor(health.DefaultThresholds()),
		opportunity.New(),
		marketstate.New(marketstate.DefaultWeights(), marketstate.Thresholds{IndicatorConsensus: 3}),
		threshold.New(threshold.DefaultConfig()),
		store,
		SourceSet{"binance": ad},
	)
	return m, ad
}

func TestManager_IngestSnapshotUpdatesBookStore(t *testing.T) {
	m, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	book := &model.OrderBook{
		ExchangeID: "binance",
		Symbol:     "BTC-USD",
		Bids:       []model.OrderBookEntry{{Price: model.NewPrice(100, 0), Quantity: model.NewQuantity(1, 0)}},
		Asks:       []model.OrderBookEntry{{Price: model.NewPrice(101, 0), Quantity: model.NewQuantity(1, 0)}},
	}
	snap := &model.Snapshot{OrderBook: book, TimestampNs: 1}
	m.IngestEvent("binance", "BTC-USD", messaging.NewSnapshotEnvelope(snap))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := m.books.Get(model.BookKey{ExchangeID: "binance", Symbol: "BTC-USD"}); got != nil {
			m.Shutdown()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected snapshot to land in the book store")
}

func TestManager_NonContiguousUpdateRequestsResync(t *testing.T) {
	m, ad := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	upd := &model.OrderBookUpdate{ExchangeID: "binance", Symbol: "BTC-USD", FirstUpdateID: 50, FinalUpdateID: 50}
	m.IngestEvent("binance", "BTC-USD", messaging.NewUpdateEnvelope(upd))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ad.resyncCalls > 0 {
			m.Shutdown()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected a resync request after a non-contiguous update with no prior book")
}

func TestManager_SubmitCommandGetAllOrderbooks(t *testing.T) {
	m, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()
	defer m.Shutdown()

	val, err := m.SubmitCommand(ctx, CmdGetAllOrderbooks, "corr-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	books, ok := val.([]*model.OrderBook)
	if !ok {
		t.Fatalf("expected []*model.OrderBook, got %T", val)
	}
	if len(books) != 0 {
		t.Fatalf("expected an empty book store, got %d books", len(books))
	}
}

func TestManager_PauseAndResumeTrading(t *testing.T) {
	m, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()
	defer m.Shutdown()

	if _, err := m.SubmitCommand(ctx, CmdPauseTrading, "corr-2", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.tradingPaused.Load() {
		t.Fatal("expected tradingPaused to be true after PauseTrading")
	}
	if _, err := m.SubmitCommand(ctx, CmdResumeTrading, "corr-3", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.tradingPaused.Load() {
		t.Fatal("expected tradingPaused to be false after ResumeTrading")
	}
}

func TestManager_UpdateConfigRejectsUnknownKey(t *testing.T) {
	m, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()
	defer m.Shutdown()

	_, err := m.SubmitCommand(ctx, CmdUpdateConfig, "corr-4", UpdateConfigPayload{Key: "nonexistent.key", Value: "1"})
	if err == nil {
		t.Fatal("expected an error updating an unrecognized config key")
	}
}

func TestManager_UpdateConfigAppliesKnownKey(t *testing.T) {
	m, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()
	defer m.Shutdown()

	_, err := m.SubmitCommand(ctx, CmdUpdateConfig, "corr-5", UpdateConfigPayload{Key: "min_profit.normal_min_profit", Value: "0.002"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
