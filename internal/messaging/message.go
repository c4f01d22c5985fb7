// Package messaging defines the envelope an adapter emits on its Stream
// channel and the central manager ingests and routes to the cleaning
// pipeline.
//
// Adapted from the teacher's StandardMessage/MarketDataMessage family: the
// generic interfaces.Message wrapper is dropped (that interface and its
// float64-typed MarketDataMessage belonged to a deleted broader messaging
// subsystem) in favor of one concrete envelope typed on the fixed-point
// model package, which is what C3 through C7 actually pass between stages.
package messaging

import (
	"time"

	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
)

// Kind identifies what an Envelope carries.
type Kind string

const (
	KindSnapshot Kind = "snapshot"
	KindUpdate   Kind = "update"
	KindTrade    Kind = "trade"
	KindSystem   Kind = "system"
	KindError    Kind = "error"
)

// Envelope is the unit of work passed from an adapter's Stream to
// Manager.IngestEvent.
type Envelope struct {
	kind      Kind
	timestamp time.Time
	metadata  map[string]string

	Snapshot *model.Snapshot
	Update   *model.OrderBookUpdate
	Trade    *model.Trade
	System   *SystemInfo
	Error    *ErrorInfo
}

// SystemInfo carries an operational notice (adapter connect/disconnect,
// resync, degraded health) rather than market data.
type SystemInfo struct {
	Component string
	Level     string
	Message   string
}

// ErrorInfo carries a structured error for downstream logging/metrics.
type ErrorInfo struct {
	Code    string
	Message string
	Source  string
}

// NewSnapshotEnvelope wraps a full order-book snapshot.
func NewSnapshotEnvelope(s *model.Snapshot) *Envelope {
	return &Envelope{kind: KindSnapshot, timestamp: time.Now(), Snapshot: s, metadata: map[string]string{}}
}

// NewUpdateEnvelope wraps an incremental order-book update.
func NewUpdateEnvelope(u *model.OrderBookUpdate) *Envelope {
	return &Envelope{kind: KindUpdate, timestamp: time.Now(), Update: u, metadata: map[string]string{}}
}

// NewTradeEnvelope wraps a single executed trade print.
func NewTradeEnvelope(t *model.Trade) *Envelope {
	return &Envelope{kind: KindTrade, timestamp: time.Now(), Trade: t, metadata: map[string]string{}}
}

// NewSystemEnvelope wraps an operational notice.
func NewSystemEnvelope(component, level, message string) *Envelope {
	return &Envelope{
		kind:      KindSystem,
		timestamp: time.Now(),
		System:    &SystemInfo{Component: component, Level: level, Message: message},
		metadata:  map[string]string{},
	}
}

// NewErrorEnvelope wraps a structured error notice.
func NewErrorEnvelope(code, message, source string) *Envelope {
	return &Envelope{
		kind:      KindError,
		timestamp: time.Now(),
		Error:     &ErrorInfo{Code: code, Message: message, Source: source},
		metadata:  map[string]string{},
	}
}

// GetKind returns the envelope's payload kind.
func (e *Envelope) GetKind() Kind { return e.kind }

// GetTimestamp returns when the envelope was created.
func (e *Envelope) GetTimestamp() time.Time { return e.timestamp }

// SetMetadata attaches a string metadata value (exchange id, source adapter).
func (e *Envelope) SetMetadata(key, value string) {
	e.metadata[key] = value
}

// GetMetadata reads a metadata value.
func (e *Envelope) GetMetadata(key string) (string, bool) {
	v, ok := e.metadata[key]
	return v, ok
}

// Symbol reports the trading pair this envelope concerns, if its payload
// carries one (System/Error envelopes do not). Used by adapter consumers
// that need the symbol without a type switch on every payload kind.
func (e *Envelope) Symbol() (string, bool) {
	switch e.kind {
	case KindSnapshot:
		if e.Snapshot != nil && e.Snapshot.OrderBook != nil {
			return e.Snapshot.OrderBook.Symbol, true
		}
	case KindUpdate:
		if e.Update != nil {
			return e.Update.Symbol, true
		}
	case KindTrade:
		if e.Trade != nil {
			return e.Trade.Symbol, true
		}
	}
	return "", false
}
