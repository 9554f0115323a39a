// Package engine answers trade queries against a TradeSource.
// It composes the predicate builder, the data source, the row enricher and
// the result cache. Every operation wraps storage failures in a
// query.QueryError and reports parameter problems as query.ErrInvalidRequest.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"solana-trade-inspector/internal/bucket"
	"solana-trade-inspector/internal/cache"
	"solana-trade-inspector/internal/domain"
	"solana-trade-inspector/internal/enrich"
	"solana-trade-inspector/internal/observability"
	"solana-trade-inspector/internal/predicate"
	"solana-trade-inspector/internal/query"
	"solana-trade-inspector/internal/storage"
)

// DefaultMaxConcurrency bounds the number of buckets evaluated in parallel.
const DefaultMaxConcurrency = 4

// Service executes queries. It is safe for concurrent use.
type Service struct {
	source  storage.TradeSource
	cache   *cache.Cache
	builder *query.Builder
	logger  *zap.Logger

	ttl            time.Duration
	maxConcurrency int
}

// Options for creating a Service.
type Options struct {
	// Required
	Source storage.TradeSource

	// Optional; zero values select defaults.
	Cache          *cache.Cache
	Logger         *zap.Logger
	Ladder         bucket.Ladder
	TTL            time.Duration
	MaxConcurrency int
}

// New creates a new Service.
func New(opts Options) *Service {
	s := &Service{
		source:         opts.Source,
		cache:          opts.Cache,
		builder:        query.NewBuilder(opts.Ladder),
		logger:         opts.Logger,
		ttl:            opts.TTL,
		maxConcurrency: opts.MaxConcurrency,
	}
	if s.cache == nil {
		s.cache = cache.New(nil)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.ttl <= 0 {
		s.ttl = cache.DefaultTTL
	}
	if s.maxConcurrency <= 0 {
		s.maxConcurrency = DefaultMaxConcurrency
	}
	return s
}

// Ladder returns the bucket ladder used for price buckets.
func (s *Service) Ladder() bucket.Ladder {
	return s.builder.Ladder()
}

// observe records the outcome of an operation and normalizes its error.
func (s *Service) observe(op string, start time.Time, err error) error {
	err = query.Wrap(op, err)
	observability.RecordQuery(op, time.Since(start).Seconds(), err)
	if err != nil {
		s.logger.Warn("query failed", zap.String("operation", op), zap.Error(err))
	}
	return err
}

// detail returns one page of enriched rows matching req and the total number
// of matching rows. Count and fetch share one Filter.
func (s *Service) detail(ctx context.Context, req query.Request) (*rowPage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	f, err := s.builder.Build(req)
	if err != nil {
		return nil, err
	}
	return s.page(ctx, f.Predicate, req.Rate, req.Page, req.PageSize)
}

func (s *Service) page(ctx context.Context, p predicate.Predicate, rate float64, page, size int) (*rowPage, error) {
	total, err := s.source.Count(ctx, p)
	if err != nil {
		return nil, err
	}
	recs, err := s.source.Fetch(ctx, p, (page-1)*size, size)
	if err != nil {
		return nil, err
	}
	return &rowPage{Rows: enrich.Rows(recs, rate), Total: total}, nil
}

// summary returns count and native/converted price statistics of the rows
// matching req. Results are cached by filter; paging is ignored.
func (s *Service) summary(ctx context.Context, req query.Request) (*domain.PriceStats, error) {
	f, err := s.builder.Build(req)
	if err != nil {
		return nil, err
	}
	return s.priceStats(ctx, req, f)
}

func (s *Service) priceStats(ctx context.Context, req query.Request, f *query.Filter) (*domain.PriceStats, error) {
	key := cache.Key("summary", req.FilterKey())
	return cache.GetOrCompute(s.cache, "summary", key, s.ttl, func() (*domain.PriceStats, error) {
		return s.source.AggregatePrice(ctx, f.Predicate, f.NativeColumn, req.Rate)
	})
}

// FilterData returns a page of rows together with the summary of the whole
// filtered set. With ReturnDetail unset no rows are fetched and the total
// is the summary count.
func (s *Service) FilterData(ctx context.Context, req query.Request) (_ *FilterResult, err error) {
	defer func(start time.Time) { err = s.observe("filter_data", start, err) }(time.Now())

	if err := req.Validate(); err != nil {
		return nil, err
	}
	stats, err := s.summary(ctx, req)
	if err != nil {
		return nil, err
	}

	res := &FilterResult{
		Data:     []enrich.Row{},
		Total:    stats.Count,
		Page:     req.Page,
		PageSize: req.PageSize,
		Summary:  priceSummary(stats),
	}
	if req.ReturnDetail {
		page, err := s.detail(ctx, req)
		if err != nil {
			return nil, err
		}
		res.Data, res.Total = page.Rows, page.Total
	}
	observability.RecordRowsReturned("filter_data", len(res.Data))
	return res, nil
}

// TopTokens returns the n most traded token addresses.
func (s *Service) TopTokens(ctx context.Context, n int) (_ []TokenCount, err error) {
	defer func(start time.Time) { err = s.observe("top_tokens", start, err) }(time.Now())

	if n < 1 || n > MaxTopTokens {
		return nil, query.Invalidf("top must be in [1, %d], got %d", MaxTopTokens, n)
	}
	key := cache.Key("top_tokens", n)
	return cache.GetOrCompute(s.cache, "top_tokens", key, s.ttl, func() ([]TokenCount, error) {
		values, err := s.source.TopValues(ctx, nil, domain.ColTokenMintAddress, n)
		if err != nil {
			return nil, err
		}
		out := make([]TokenCount, len(values))
		for i, v := range values {
			out[i] = TokenCount{TokenMintAddress: v.Value, Count: v.Count}
		}
		return out, nil
	})
}

// ColumnStats returns count, avg, min and max of a numeric column over the
// rows of the given tokens, or over all rows when tokens is empty.
func (s *Service) ColumnStats(ctx context.Context, column string, tokens []string) (_ Summary, err error) {
	defer func(start time.Time) { err = s.observe("column_stats", start, err) }(time.Now())

	if column == "" {
		return nil, query.Invalidf("column is required")
	}
	var p predicate.Predicate
	if len(tokens) > 0 {
		p = predicate.In{Column: domain.ColTokenMintAddress, Values: tokens}
	}
	key := cache.Key("column_stats", column, tokens)
	stats, err := cache.GetOrCompute(s.cache, "column_stats", key, s.ttl, func() (*domain.Stats, error) {
		return s.source.Aggregate(ctx, p, predicate.Col(column))
	})
	if err != nil {
		return nil, err
	}
	return statsSummary(stats.Count, stats), nil
}
