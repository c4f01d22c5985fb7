// Package model holds the fixed-point value types shared by every pipeline
// stage: prices, quantities, order books, trades, snapshots, opportunities
// and the aggregated system/market state.
package model

import "fmt"

// MaxPrice is the default configurable upper bound for a valid price
// (spec: "0 < price < 10^6, configurable").
const MaxPrice int64 = 1_000_000

// Price is a fixed-point signed integer with a decimal scale fixed at
// construction time. Scale is never mutated afterward.
type Price struct {
	raw   int64
	scale uint8
}

// Quantity is a fixed-point signed integer with a decimal scale fixed at
// construction time.
type Quantity struct {
	raw   int64
	scale uint8
}

// NewPrice builds a Price from its raw integer representation and scale.
func NewPrice(raw int64, scale uint8) Price {
	return Price{raw: raw, scale: scale}
}

// NewQuantity builds a Quantity from its raw integer representation and scale.
func NewQuantity(raw int64, scale uint8) Quantity {
	return Quantity{raw: raw, scale: scale}
}

// ParsePrice converts a float64 at an API boundary into fixed-point,
// rounding to the nearest raw unit at the given scale.
func ParsePrice(f float64, scale uint8) Price {
	mult := pow10(scale)
	return Price{raw: int64(f*mult + sign(f)*0.5), scale: scale}
}

// ParseQuantity converts a float64 at an API boundary into fixed-point.
func ParseQuantity(f float64, scale uint8) Quantity {
	mult := pow10(scale)
	return Quantity{raw: int64(f*mult + sign(f)*0.5), scale: scale}
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}

func pow10(scale uint8) float64 {
	v := 1.0
	for i := uint8(0); i < scale; i++ {
		v *= 10
	}
	return v
}

// Raw returns the underlying fixed-point integer.
func (p Price) Raw() int64 { return p.raw }

// Scale returns the decimal scale this price was constructed with.
func (p Price) Scale() uint8 { return p.scale }

// Float converts to float64. Only ever call this at an API boundary.
func (p Price) Float() float64 { return float64(p.raw) / pow10(p.scale) }

// IsValid reports whether the price falls within (0, maxPrice).
func (p Price) IsValid(maxPrice int64) bool {
	return p.raw > 0 && p.raw < maxPrice*int64(pow10(p.scale))
}

// Cmp returns -1, 0, or 1 comparing p to other. Both must share a scale;
// mismatched scales are rescaled to the finer of the two before compare.
func (p Price) Cmp(other Price) int {
	a, b := rescalePair(p.raw, p.scale, other.raw, other.scale)
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (p Price) String() string {
	return fmt.Sprintf("%.*f", p.scale, p.Float())
}

// Raw returns the underlying fixed-point integer.
func (q Quantity) Raw() int64 { return q.raw }

// Scale returns the decimal scale.
func (q Quantity) Scale() uint8 { return q.scale }

// Float converts to float64.
func (q Quantity) Float() float64 { return float64(q.raw) / pow10(q.scale) }

// IsZero reports whether the quantity is exactly zero.
func (q Quantity) IsZero() bool { return q.raw == 0 }

// IsPositive reports whether the quantity is strictly greater than zero.
func (q Quantity) IsPositive() bool { return q.raw > 0 }

// Add returns q + other. When the scales differ, both are rescaled to the
// finer of the two and the result carries that scale.
func (q Quantity) Add(other Quantity) Quantity {
	a, b := rescalePair(q.raw, q.scale, other.raw, other.scale)
	scale := q.scale
	if other.scale > scale {
		scale = other.scale
	}
	return Quantity{raw: a + b, scale: scale}
}

func (q Quantity) String() string {
	return fmt.Sprintf("%.*f", q.scale, q.Float())
}

func rescalePair(a int64, aScale uint8, b int64, bScale uint8) (int64, int64) {
	if aScale == bScale {
		return a, b
	}
	if aScale > bScale {
		return a, b * int64(pow10(aScale-bScale))
	}
	return a * int64(pow10(bScale-aScale)), b
}
