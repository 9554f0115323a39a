package engine

import (
	"context"
	"math"
	"time"

	"solana-trade-inspector/internal/domain"
	"solana-trade-inspector/internal/enrich"
	"solana-trade-inspector/internal/metrics"
	"solana-trade-inspector/internal/observability"
	"solana-trade-inspector/internal/predicate"
	"solana-trade-inspector/internal/query"
)

// SampleRequest selects a uniform random subset of matching rows.
type SampleRequest struct {
	Rows   int
	Tokens []string
	Rate   float64

	// PriceType is optional. When set, rows without a native price are
	// excluded, Bucket applies and the summary carries price statistics.
	PriceType domain.PriceType
	Unit      domain.PriceUnit
	Bucket    *int
}

// Sample returns up to req.Rows random matching rows. The summary describes
// the sampled rows, not the whole matching set; Total is the matching count.
func (s *Service) Sample(ctx context.Context, req SampleRequest) (_ *FilterResult, err error) {
	defer func(start time.Time) { err = s.observe("random_sample", start, err) }(time.Now())

	if req.Rows < 1 || req.Rows > MaxSampleRows {
		return nil, query.Invalidf("rows must be in [1, %d], got %d", MaxSampleRows, req.Rows)
	}
	if !(req.Rate > 0) || math.IsInf(req.Rate, 0) {
		return nil, query.Invalidf("conversion rate must be a positive number, got %v", req.Rate)
	}

	var p predicate.Predicate
	if len(req.Tokens) > 0 {
		p = predicate.In{Column: domain.ColTokenMintAddress, Values: req.Tokens}
	}
	if req.PriceType != "" {
		f, err := s.builder.Build(query.Request{
			PriceType:    req.PriceType,
			Unit:         req.Unit,
			Rate:         req.Rate,
			Tokens:       req.Tokens,
			Bucket:       req.Bucket,
			RequirePrice: true,
		})
		if err != nil {
			return nil, err
		}
		p = f.Predicate
	}

	total, err := s.source.Count(ctx, p)
	if err != nil {
		return nil, err
	}
	var recs []*domain.TradeRecord
	if total > 0 {
		if recs, err = s.source.Sample(ctx, p, req.Rows); err != nil {
			return nil, err
		}
	}

	res := &FilterResult{
		Data:     enrich.Rows(recs, req.Rate),
		Total:    total,
		Page:     1,
		PageSize: req.Rows,
	}
	if req.PriceType != "" {
		stats := metrics.ComputePrice(recs, req.PriceType.NativeColumn(), req.Rate)
		res.Summary = priceSummary(&stats)
	} else {
		res.Summary = statsSummary(int64(len(recs)), nil)
	}
	observability.RecordRowsReturned("random_sample", len(res.Data))
	return res, nil
}
