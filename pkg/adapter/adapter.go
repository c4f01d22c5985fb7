// Package adapter defines the boundary between an exchange connection and
// the rest of the pipeline. This is the one place runtime polymorphism is
// justified (spec.md §9): every other component is concretely typed.
//
// The Connect/Close/lifecycle shape is grounded on the connection subset of
// pkg/interfaces/exchange_interface.go's ExchangeInterface
// (Connect/Disconnect/IsConnected/SubscribeMarketData); the
// execution/compliance methods on that interface are not carried forward,
// since order execution is out of scope (spec.md §1).
package adapter

import (
	"context"

	"github.com/abdoElHodaky/arb-pipeline/internal/messaging"
)

// Adapter is implemented by every concrete exchange connector.
type Adapter interface {
	// ExchangeID identifies the exchange this adapter connects to.
	ExchangeID() string

	// Connect establishes the underlying transport connection.
	Connect(ctx context.Context) error

	// Subscribe requests market data for the given symbols.
	Subscribe(ctx context.Context, symbols []string) error

	// Stream returns a channel of envelopes; closed when the adapter stops.
	Stream() <-chan *messaging.Envelope

	// Resync requests a fresh full snapshot, used after a non-contiguous
	// update is detected (spec.md §4.7, protocol-kind recovery).
	Resync(ctx context.Context, symbol string) error

	// IsConnected reports the current transport state.
	IsConnected() bool

	// Close tears down the connection and stops the Stream channel.
	Close() error
}
