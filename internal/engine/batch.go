package engine

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"solana-trade-inspector/internal/enrich"
	"solana-trade-inspector/internal/query"
)

// MaxRangePages bounds the number of pages one range request may ask for.
const MaxRangePages = 100

// BatchMode names an explicitly requested batch mode.
type BatchMode string

// ModeInit returns page 1 of every requested bucket.
const ModeInit BatchMode = "init"

// BatchRequest asks for pages of several buckets. Exactly one shape applies,
// checked in order: Mode=init, PageStart..PageEnd over the first bucket, or
// a single Page of every bucket. Request.Bucket and Request.Page are ignored.
type BatchRequest struct {
	query.Request

	Buckets   []int
	Mode      BatchMode
	Page      *int
	PageStart *int
	PageEnd   *int
}

// BucketPages holds the pages and statistics of one bucket.
type BucketPages struct {
	Pages   map[int][]enrich.Row `json:"pages"`
	Total   int64                `json:"total"`
	Low     float64              `json:"low"`
	High    *float64             `json:"high"`
	Summary Summary              `json:"summary"`
}

// BatchResult maps bucket index to its pages.
type BatchResult map[int]*BucketPages

type batchPlan struct {
	buckets []int
	pages   []int
	// parallel is false for range mode: its pages run in order.
	parallel bool
}

// Batch evaluates a batch request. Buckets without matches are reported
// with total 0 and empty pages.
func (s *Service) Batch(ctx context.Context, req BatchRequest) (_ BatchResult, err error) {
	defer func(start time.Time) { err = s.observe("batch", start, err) }(time.Now())

	plan, err := s.plan(req)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("batch",
		zap.Ints("buckets", plan.buckets),
		zap.Ints("pages", plan.pages),
		zap.String("filter", req.FilterKey()),
	)

	results := make([]*BucketPages, len(plan.buckets))
	if !plan.parallel || len(plan.buckets) == 1 {
		for i, b := range plan.buckets {
			if results[i], err = s.bucketPages(ctx, req.Request, b, plan.pages); err != nil {
				return nil, err
			}
		}
	} else {
		p := pool.New().WithMaxGoroutines(s.maxConcurrency).WithContext(ctx).WithCancelOnError().WithFirstError()
		for i, b := range plan.buckets {
			p.Go(func(ctx context.Context) error {
				bp, err := s.bucketPages(ctx, req.Request, b, plan.pages)
				if err != nil {
					return err
				}
				results[i] = bp
				return nil
			})
		}
		if err := p.Wait(); err != nil {
			return nil, err
		}
	}

	out := make(BatchResult, len(results))
	for i, b := range plan.buckets {
		out[b] = results[i]
	}
	return out, nil
}

func (s *Service) plan(req BatchRequest) (*batchPlan, error) {
	base := req.Request
	base.Page = 1
	if err := base.Validate(); err != nil {
		return nil, err
	}

	buckets, err := s.normalizeBuckets(req.Buckets)
	if err != nil {
		return nil, err
	}

	switch {
	case req.Mode != "" && req.Mode != ModeInit:
		return nil, query.Invalidf("unknown batch mode %q", req.Mode)

	case req.Mode == ModeInit:
		return &batchPlan{buckets: buckets, pages: []int{1}, parallel: true}, nil

	case req.PageStart != nil && req.PageEnd != nil:
		start, end := *req.PageStart, *req.PageEnd
		if start < 1 || end < start {
			return nil, query.Invalidf("invalid page range %d..%d", start, end)
		}
		if end-start+1 > MaxRangePages {
			return nil, query.Invalidf("page range %d..%d exceeds %d pages", start, end, MaxRangePages)
		}
		pages := make([]int, 0, end-start+1)
		for p := start; p <= end; p++ {
			pages = append(pages, p)
		}
		return &batchPlan{buckets: buckets[:1], pages: pages}, nil

	case req.Page != nil:
		if *req.Page < 1 {
			return nil, query.Invalidf("page must be >= 1, got %d", *req.Page)
		}
		return &batchPlan{buckets: buckets, pages: []int{*req.Page}, parallel: true}, nil
	}
	return nil, query.Invalidf("batch request needs mode=init, page_start and page_end, or page")
}

// normalizeBuckets validates indices and drops duplicates, keeping the
// first occurrence.
func (s *Service) normalizeBuckets(buckets []int) ([]int, error) {
	if len(buckets) == 0 {
		return nil, query.Invalidf("at least one bucket is required")
	}
	ladder := s.builder.Ladder()
	seen := make(map[int]struct{}, len(buckets))
	out := make([]int, 0, len(buckets))
	for _, b := range buckets {
		if !ladder.Valid(b) {
			return nil, query.Invalidf("bucket %d not in [0, %d]", b, ladder.Len()-1)
		}
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	return out, nil
}

// bucketPages computes the requested pages of one bucket. Every page uses the
// same Filter so the reported total is stable across pages.
func (s *Service) bucketPages(ctx context.Context, base query.Request, bucket int, pages []int) (*BucketPages, error) {
	req := base
	req.Bucket = &bucket
	f, err := s.builder.Build(req)
	if err != nil {
		return nil, err
	}
	stats, err := s.priceStats(ctx, req, f)
	if err != nil {
		return nil, err
	}

	bp := &BucketPages{
		Pages:   make(map[int][]enrich.Row, len(pages)),
		Total:   stats.Count,
		Low:     f.Low,
		High:    f.High,
		Summary: priceSummary(stats),
	}
	if !req.ReturnDetail {
		return bp, nil
	}
	for _, n := range pages {
		page, err := s.page(ctx, f.Predicate, req.Rate, n, req.PageSize)
		if err != nil {
			return nil, err
		}
		bp.Pages[n] = page.Rows
		bp.Total = page.Total
	}
	return bp, nil
}
