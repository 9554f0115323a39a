package metrics

import (
	"sort"

	"solana-trade-inspector/internal/domain"
)

// Value extracts a numeric value from a row; ok is false for null.
type Value func(r *domain.TradeRecord) (float64, bool)

// Compute returns statistics of value over rows.
func Compute(rows []*domain.TradeRecord, value Value) domain.Stats {
	var acc Accumulator
	for _, r := range rows {
		acc.Add(value(r))
	}
	return acc.Stats()
}

// PriceAccumulator collects native and converted statistics of one price
// column in a single pass.
type PriceAccumulator struct {
	Column string
	Rate   float64

	native    Accumulator
	converted Accumulator
}

// Add records one row.
func (p *PriceAccumulator) Add(r *domain.TradeRecord) {
	v, ok := r.Float(p.Column)
	p.native.Add(v, ok)
	p.converted.Add(v*p.Rate, ok)
}

// Stats returns the accumulated price statistics.
func (p *PriceAccumulator) Stats() domain.PriceStats {
	return domain.PriceStats{
		Count:     p.native.Count(),
		Native:    p.native.Stats(),
		Converted: p.converted.Stats(),
	}
}

// ComputePrice returns native and converted statistics of column over rows.
func ComputePrice(rows []*domain.TradeRecord, column string, rate float64) domain.PriceStats {
	acc := PriceAccumulator{Column: column, Rate: rate}
	for _, r := range rows {
		acc.Add(r)
	}
	return acc.Stats()
}

// ValueCounter counts occurrences of string values.
type ValueCounter map[string]int64

// Add counts one value.
func (c ValueCounter) Add(v string) {
	c[v]++
}

// Top returns the limit most frequent values, ordered by count descending
// then value ascending. limit <= 0 returns all values.
func (c ValueCounter) Top(limit int) []domain.ValueCount {
	out := make([]domain.ValueCount, 0, len(c))
	for v, n := range c {
		out = append(out, domain.ValueCount{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
