package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"solana-trade-inspector/internal/cache"
	"solana-trade-inspector/internal/domain"
	"solana-trade-inspector/internal/observability"
	"solana-trade-inspector/internal/query"
)

// PriceRange is one histogram bin.
type PriceRange struct {
	Label   string   `json:"label"`
	Low     float64  `json:"low"`
	High    *float64 `json:"high"`
	Count   int64    `json:"count"`
	Percent float64  `json:"percent"`
}

// PriceRanges is the distribution of positive prices over the bucket ladder.
type PriceRanges struct {
	Bins  []PriceRange     `json:"bins"`
	Unit  domain.PriceUnit `json:"unit"`
	Total int64            `json:"total"`
}

// PriceRanges counts rows with a positive native price per bucket, with
// bucket bounds applied in the requested unit. Percentages are rounded to
// two decimals. Results are cached.
func (s *Service) PriceRanges(ctx context.Context, pt domain.PriceType, unit domain.PriceUnit, rate float64) (_ *PriceRanges, err error) {
	defer func(start time.Time) { err = s.observe("price_ranges", start, err) }(time.Now())

	base := query.Request{PriceType: pt, Unit: unit, Rate: rate, PositivePrice: true}
	// Validates the base filter before the cache is consulted.
	if _, err := s.builder.Build(base); err != nil {
		return nil, err
	}

	key := cache.Key("price_ranges", base.FilterKey())
	return cache.GetOrCompute(s.cache, "price_ranges", key, s.ttl, func() (*PriceRanges, error) {
		return s.computeRanges(ctx, base)
	})
}

func (s *Service) computeRanges(ctx context.Context, base query.Request) (*PriceRanges, error) {
	ladder := s.builder.Ladder()
	bins := make([]PriceRange, ladder.Len())

	p := pool.New().WithMaxGoroutines(s.maxConcurrency).WithContext(ctx).WithCancelOnError().WithFirstError()
	for i := range bins {
		p.Go(func(ctx context.Context) error {
			req := base
			req.Bucket = &i
			f, err := s.builder.Build(req)
			if err != nil {
				return err
			}
			n, err := s.source.Count(ctx, f.Predicate)
			if err != nil {
				return err
			}
			bins[i] = PriceRange{Label: ladder.Label(i), Low: f.Low, High: f.High, Count: n}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	var total int64
	for _, b := range bins {
		total += b.Count
	}
	for i := range bins {
		bins[i].Percent = percent(bins[i].Count, total)
	}
	observability.RecordRowsReturned("price_ranges", len(bins))
	return &PriceRanges{Bins: bins, Unit: base.Unit, Total: total}, nil
}

func percent(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	f, _ := decimal.NewFromInt(n * 100).Div(decimal.NewFromInt(total)).Round(2).Float64()
	return f
}
