package model

// Side is the aggressor side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is a single executed trade reported by an exchange adapter.
type Trade struct {
	Symbol      string
	ExchangeID  string
	Side        Side
	Price       Price
	Quantity    Quantity
	TimestampNs int64
}

// SnapshotSource identifies where a Snapshot originated, for diagnostics.
type SnapshotSource string

// Snapshot is the unit emitted by the cleaning pipeline toward the
// order-book store and caches: an optional full book plus any trades
// observed in the same cycle (§3).
type Snapshot struct {
	OrderBook   *OrderBook
	Trades      []Trade
	TimestampNs int64
	Source      SnapshotSource
}
