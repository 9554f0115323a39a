package memory

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"solana-trade-inspector/internal/domain"
	"solana-trade-inspector/internal/metrics"
	"solana-trade-inspector/internal/predicate"
	"solana-trade-inspector/internal/storage"
)

// TradeSource is an in-memory implementation of storage.TradeSource and
// storage.TradeWriter. Rows are kept in RowID order.
type TradeSource struct {
	mu     sync.RWMutex
	rows   []*domain.TradeRecord
	ids    map[uint64]struct{}
	schema domain.Schema
	intn   func(n int) int
}

// NewTradeSource creates an empty source with the given schema. An empty
// schema selects the core columns.
func NewTradeSource(schema domain.Schema) *TradeSource {
	if schema.Len() == 0 {
		schema = domain.NewSchema(domain.CoreColumns...)
	}
	return &TradeSource{
		ids:    make(map[uint64]struct{}),
		schema: schema,
		intn:   rand.IntN,
	}
}

// SetRandom replaces the random index source used by Sample.
func (s *TradeSource) SetRandom(intn func(n int) int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intn = intn
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate RowID.
func (s *TradeSource) InsertBulk(_ context.Context, records []*domain.TradeRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[uint64]struct{}, len(records))
	for _, r := range records {
		if r == nil {
			return storage.ErrInvalidInput
		}
		if _, exists := s.ids[r.RowID]; exists {
			return fmt.Errorf("%w: row_id %d", storage.ErrDuplicateKey, r.RowID)
		}
		if _, exists := batchKeys[r.RowID]; exists {
			return fmt.Errorf("%w: row_id %d", storage.ErrDuplicateKey, r.RowID)
		}
		batchKeys[r.RowID] = struct{}{}
	}

	sorted := len(s.rows) == 0 || records[0].RowID > s.rows[len(s.rows)-1].RowID
	for i, r := range records {
		if i > 0 && r.RowID <= records[i-1].RowID {
			sorted = false
		}
		cp := *r
		if r.Extra != nil {
			cp.Extra = make(map[string]any, len(r.Extra))
			for k, v := range r.Extra {
				cp.Extra[k] = v
			}
		}
		s.rows = append(s.rows, &cp)
		s.ids[r.RowID] = struct{}{}
	}
	if !sorted {
		sort.Slice(s.rows, func(i, j int) bool { return s.rows[i].RowID < s.rows[j].RowID })
	}
	return nil
}

// Len returns the number of stored rows.
func (s *TradeSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Schema returns the dataset columns.
func (s *TradeSource) Schema(_ context.Context) (domain.Schema, error) {
	return s.schema, nil
}

// scan calls visit for every row matching p, in storage order, until visit
// returns false.
func (s *TradeSource) scan(ctx context.Context, p predicate.Predicate, visit func(r *domain.TradeRecord) bool) error {
	match, err := predicate.Compile(p, s.schema)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rows {
		if match(r) && !visit(r) {
			break
		}
	}
	return nil
}

// Count returns the number of rows matching p.
func (s *TradeSource) Count(ctx context.Context, p predicate.Predicate) (int64, error) {
	var n int64
	err := s.scan(ctx, p, func(*domain.TradeRecord) bool {
		n++
		return true
	})
	return n, err
}

// Sample returns up to n matching rows chosen uniformly without replacement.
func (s *TradeSource) Sample(ctx context.Context, p predicate.Predicate, n int) ([]*domain.TradeRecord, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative sample size %d", storage.ErrInvalidInput, n)
	}
	var matched []*domain.TradeRecord
	if err := s.scan(ctx, p, func(r *domain.TradeRecord) bool {
		matched = append(matched, r)
		return true
	}); err != nil {
		return nil, err
	}
	if n >= len(matched) {
		return matched, nil
	}

	s.mu.RLock()
	intn := s.intn
	s.mu.RUnlock()

	// Partial Fisher-Yates: the first n slots end up a uniform sample.
	for i := 0; i < n; i++ {
		j := i + intn(len(matched)-i)
		matched[i], matched[j] = matched[j], matched[i]
	}
	return matched[:n], nil
}

// Fetch returns a page of matching rows in storage order.
func (s *TradeSource) Fetch(ctx context.Context, p predicate.Predicate, offset, limit int) ([]*domain.TradeRecord, error) {
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("%w: offset %d limit %d", storage.ErrInvalidInput, offset, limit)
	}
	out := make([]*domain.TradeRecord, 0, limit)
	if limit == 0 {
		return out, nil
	}
	skipped := 0
	err := s.scan(ctx, p, func(r *domain.TradeRecord) bool {
		if skipped < offset {
			skipped++
			return true
		}
		out = append(out, r)
		return len(out) < limit
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Aggregate returns statistics of expr over matching rows.
func (s *TradeSource) Aggregate(ctx context.Context, p predicate.Predicate, expr predicate.Expr) (*domain.Stats, error) {
	eval, err := predicate.CompileExpr(expr, s.schema)
	if err != nil {
		return nil, err
	}
	var acc metrics.Accumulator
	if err := s.scan(ctx, p, func(r *domain.TradeRecord) bool {
		acc.Add(eval(r))
		return true
	}); err != nil {
		return nil, err
	}
	stats := acc.Stats()
	return &stats, nil
}

// AggregatePrice returns native and converted statistics of a price column.
func (s *TradeSource) AggregatePrice(ctx context.Context, p predicate.Predicate, column string, rate float64) (*domain.PriceStats, error) {
	if err := predicate.ValidateExpr(predicate.Col(column), s.schema); err != nil {
		return nil, err
	}
	acc := metrics.PriceAccumulator{Column: column, Rate: rate}
	if err := s.scan(ctx, p, func(r *domain.TradeRecord) bool {
		acc.Add(r)
		return true
	}); err != nil {
		return nil, err
	}
	stats := acc.Stats()
	return &stats, nil
}

// TopValues returns the most frequent values of a string column.
func (s *TradeSource) TopValues(ctx context.Context, p predicate.Predicate, column string, limit int) ([]domain.ValueCount, error) {
	def, ok := s.schema.Lookup(column)
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownColumn, column)
	}
	if def.Kind != domain.KindString {
		return nil, fmt.Errorf("%w: %s", storage.ErrNonStringColumn, column)
	}
	counter := metrics.ValueCounter{}
	if err := s.scan(ctx, p, func(r *domain.TradeRecord) bool {
		if v, ok := r.String(column); ok {
			counter.Add(v)
		}
		return true
	}); err != nil {
		return nil, err
	}
	return counter.Top(limit), nil
}

var (
	_ storage.TradeSource = (*TradeSource)(nil)
	_ storage.TradeWriter = (*TradeSource)(nil)
)
