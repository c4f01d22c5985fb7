// Package nats implements pkg/adapter.Adapter over a NATS subject per
// symbol, the one concrete reference adapter this repo ships (spec.md §9).
// Each message on subject marketdata.<exchange>.<symbol> carries one
// comma-separated "side,price,qty,timestamp_ns" trade, the simplest wire
// format this repo's scope actually needs — a full exchange-protocol parser belongs to
// the adapter author, not to this pipeline.
package nats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/abdoElHodaky/arb-pipeline/internal/messaging"
	pipelineerrors "github.com/abdoElHodaky/arb-pipeline/pkg/errors"
	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
)

// Adapter streams trade prints from a NATS subject, one per exchange.
type Adapter struct {
	exchangeID string
	url        string
	scale      uint8

	mu     sync.Mutex
	conn   *nats.Conn
	subs   []*nats.Subscription
	out    chan *messaging.Envelope
	closed bool
}

// New constructs an Adapter for exchangeID, connecting to a NATS server at
// url. scale is the fixed-point decimal scale applied to parsed prices.
func New(exchangeID, url string, scale uint8) *Adapter {
	return &Adapter{
		exchangeID: exchangeID,
		url:        url,
		scale:      scale,
		out:        make(chan *messaging.Envelope, 1024),
	}
}

// ExchangeID implements adapter.Adapter.
func (a *Adapter) ExchangeID() string { return a.exchangeID }

// Connect implements adapter.Adapter.
func (a *Adapter) Connect(ctx context.Context) error {
	conn, err := nats.Connect(a.url, nats.Timeout(10_000_000_000))
	if err != nil {
		return pipelineerrors.Wrap(err, pipelineerrors.KindTransientIngress, pipelineerrors.CodeAdapterTimeout, "connecting to nats")
	}
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
	return nil
}

// Subscribe implements adapter.Adapter, subscribing to one subject per symbol.
func (a *Adapter) Subscribe(ctx context.Context, symbols []string) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return pipelineerrors.New(pipelineerrors.KindInternal, pipelineerrors.CodeChannelClosed, "subscribe called before connect")
	}

	for _, symbol := range symbols {
		subject := fmt.Sprintf("marketdata.%s.%s", a.exchangeID, symbol)
		sub, err := conn.Subscribe(subject, a.handleMessage(symbol))
		if err != nil {
			return pipelineerrors.Wrap(err, pipelineerrors.KindTransientIngress, pipelineerrors.CodeAdapterTimeout, "subscribing to "+subject)
		}
		a.mu.Lock()
		a.subs = append(a.subs, sub)
		a.mu.Unlock()
	}
	return nil
}

func (a *Adapter) handleMessage(symbol string) nats.MsgHandler {
	return func(msg *nats.Msg) {
		trade, err := a.parseTrade(symbol, msg.Data)
		if err != nil {
			a.emit(messaging.NewErrorEnvelope(pipelineerrors.CodeUnsortablePrices, err.Error(), a.exchangeID))
			return
		}
		a.emit(messaging.NewTradeEnvelope(trade))
	}
}

// parseTrade decodes "side,price,qty,timestamp_ns".
func (a *Adapter) parseTrade(symbol string, data []byte) (*model.Trade, error) {
	parts := strings.Split(strings.TrimSpace(string(data)), ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("expected 4 fields, got %d", len(parts))
	}
	priceF, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return nil, fmt.Errorf("parsing price: %w", err)
	}
	qtyF, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return nil, fmt.Errorf("parsing quantity: %w", err)
	}
	ts, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}

	side := model.SideBuy
	if parts[0] == "sell" {
		side = model.SideSell
	}

	return &model.Trade{
		Symbol:      symbol,
		ExchangeID:  a.exchangeID,
		Side:        side,
		Price:       model.ParsePrice(priceF, a.scale),
		Quantity:    model.ParseQuantity(qtyF, a.scale),
		TimestampNs: ts,
	}, nil
}

func (a *Adapter) emit(e *messaging.Envelope) {
	e.SetMetadata("exchange", a.exchangeID)
	select {
	case a.out <- e:
	default:
		// back-pressure: the ring buffer downstream is the real overflow
		// path; a full internal channel here means the consumer has
		// stalled, so drop rather than block the NATS callback goroutine.
	}
}

// Stream implements adapter.Adapter.
func (a *Adapter) Stream() <-chan *messaging.Envelope { return a.out }

// Resync implements adapter.Adapter by publishing a request on the symbol's
// ".resync" subject — NATS subjects are not sequence-numbered, so a resync here is
// just asking the emitting side (out of scope) to republish a snapshot.
func (a *Adapter) Resync(ctx context.Context, symbol string) error {
	subject := fmt.Sprintf("marketdata.%s.%s.resync", a.exchangeID, symbol)
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return pipelineerrors.New(pipelineerrors.KindInternal, pipelineerrors.CodeChannelClosed, "resync called before connect")
	}
	return conn.Publish(subject, []byte("resync"))
}

// IsConnected implements adapter.Adapter.
func (a *Adapter) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil && a.conn.IsConnected()
}

// Close implements adapter.Adapter.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	for _, sub := range a.subs {
		_ = sub.Unsubscribe()
	}
	if a.conn != nil {
		a.conn.Close()
	}
	close(a.out)
	return nil
}
