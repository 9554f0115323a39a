// Package metrics computes count and finite-value statistics over trade rows.
package metrics

import (
	"math"

	"github.com/shopspring/decimal"

	"solana-trade-inspector/internal/domain"
)

// Accumulator collects count/avg/min/max of a numeric expression.
// Every added row counts; only finite values contribute to avg, min and max.
// Sums are kept in decimal so averages do not depend on row order.
type Accumulator struct {
	count  int64
	finite int64
	sum    decimal.Decimal
	min    float64
	max    float64
}

// Add records one matching row. ok is false when the value is null.
func (a *Accumulator) Add(v float64, ok bool) {
	a.count++
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	if a.finite == 0 || v < a.min {
		a.min = v
	}
	if a.finite == 0 || v > a.max {
		a.max = v
	}
	a.finite++
	a.sum = a.sum.Add(decimal.NewFromFloat(v))
}

// Count returns the number of recorded rows.
func (a *Accumulator) Count() int64 {
	return a.count
}

// Stats returns the accumulated statistics. Avg, Min and Max are nil when no
// finite value was recorded.
func (a *Accumulator) Stats() domain.Stats {
	s := domain.Stats{Count: a.count}
	if a.finite == 0 {
		return s
	}
	avg, _ := a.sum.Div(decimal.NewFromInt(a.finite)).Float64()
	lo, hi := a.min, a.max
	s.Avg, s.Min, s.Max = &avg, &lo, &hi
	return s
}
