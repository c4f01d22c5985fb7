package model

// ArbitrageOpportunity is a candidate cross-exchange trade produced by the
// (external) strategy engine and scored/tracked by the pipeline (§3, C9).
type ArbitrageOpportunity struct {
	ID                  string
	Symbol              string
	BuyExchange         string
	SellExchange        string
	BuyPrice            Price
	SellPrice           Price
	NetProfit           float64 // in quote currency, already fee/slippage adjusted
	LiquidityScore      float64 // [0,1]
	EstimatedLatencyMs  float64
	RiskScore           float64 // [0,1]
	CreatedNs           int64
	TTLNs               int64
	HistoricalSuccess   float64 // [0,1], recent strategy success rate for this pair
}

// Expired reports whether the opportunity has outlived its TTL as of now.
func (o *ArbitrageOpportunity) Expired(nowNs int64) bool {
	return nowNs-o.CreatedNs > o.TTLNs
}

// Score implements the opportunity-scoring formula from spec.md §4.13:
//
//	0.4*net_profit + 0.2*(liquidity*100) + 0.2*(1000/(latency_ms+1))
//	+ 0.1*(historical_success*100) + 0.1*((1-risk)*100) - 0.01*min(age_s,10)
//
// Clamped to >= 0.
func (o *ArbitrageOpportunity) Score(nowNs int64) float64 {
	ageS := float64(nowNs-o.CreatedNs) / 1e9
	if ageS < 0 {
		ageS = 0
	}
	if ageS > 10 {
		ageS = 10
	}
	score := 0.4*o.NetProfit +
		0.2*(o.LiquidityScore*100) +
		0.2*(1000/(o.EstimatedLatencyMs+1)) +
		0.1*(o.HistoricalSuccess*100) +
		0.1*((1-o.RiskScore)*100) -
		0.01*ageS
	if score < 0 {
		return 0
	}
	return score
}
