package memory

import (
	"context"
	"errors"
	"math"
	"testing"

	"solana-trade-inspector/internal/domain"
	"solana-trade-inspector/internal/predicate"
	"solana-trade-inspector/internal/storage"
)

func f(v float64) *float64 {
	return &v
}

func seedSource(t *testing.T, n int) *TradeSource {
	t.Helper()
	src := NewTradeSource(domain.Schema{})
	records := make([]*domain.TradeRecord, n)
	for i := 0; i < n; i++ {
		tok := "tokA"
		if i%3 == 0 {
			tok = "tokB"
		}
		records[i] = &domain.TradeRecord{
			RowID:            uint64(i),
			Type:             domain.TypeBuyToken,
			TokenMintAddress: tok,
			BuyPriceSOL:      f(float64(i)),
		}
	}
	if err := src.InsertBulk(context.Background(), records); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	return src
}

func TestTradeSource_InsertBulkDuplicate(t *testing.T) {
	src := NewTradeSource(domain.Schema{})
	ctx := context.Background()

	if err := src.InsertBulk(ctx, []*domain.TradeRecord{{RowID: 1}, {RowID: 2}}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	err := src.InsertBulk(ctx, []*domain.TradeRecord{{RowID: 3}, {RowID: 1}})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	if src.Len() != 2 {
		t.Errorf("Batch must be rejected atomically, got %d rows", src.Len())
	}

	err = src.InsertBulk(ctx, []*domain.TradeRecord{{RowID: 5}, {RowID: 5}})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}

	err = src.InsertBulk(ctx, []*domain.TradeRecord{nil})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestTradeSource_StorageOrder(t *testing.T) {
	src := NewTradeSource(domain.Schema{})
	ctx := context.Background()
	_ = src.InsertBulk(ctx, []*domain.TradeRecord{{RowID: 5}, {RowID: 2}})
	_ = src.InsertBulk(ctx, []*domain.TradeRecord{{RowID: 3}})

	rows, err := src.Fetch(ctx, nil, 0, 10)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	want := []uint64{2, 3, 5}
	for i, r := range rows {
		if r.RowID != want[i] {
			t.Errorf("row %d: got RowID %d, want %d", i, r.RowID, want[i])
		}
	}
}

func TestTradeSource_CountEqualsSumOfPages(t *testing.T) {
	src := seedSource(t, 53)
	ctx := context.Background()
	p := predicate.All(predicate.In{Column: domain.ColTokenMintAddress, Values: []string{"tokA"}})

	total, err := src.Count(ctx, p)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if total != 35 {
		t.Fatalf("expected 35 matching rows, got %d", total)
	}

	for _, pageSize := range []int{1, 7, 10, 35, 100} {
		pages := int((total + int64(pageSize) - 1) / int64(pageSize))
		var sum int64
		seen := make(map[uint64]bool)
		for page := 1; page <= pages; page++ {
			rows, err := src.Fetch(ctx, p, (page-1)*pageSize, pageSize)
			if err != nil {
				t.Fatalf("Fetch failed: %v", err)
			}
			if page < pages && len(rows) != pageSize {
				t.Errorf("pageSize %d page %d: got %d rows", pageSize, page, len(rows))
			}
			for _, r := range rows {
				if seen[r.RowID] {
					t.Errorf("row %d returned twice", r.RowID)
				}
				seen[r.RowID] = true
			}
			sum += int64(len(rows))
		}
		if sum != total {
			t.Errorf("pageSize %d: sum of pages %d != count %d", pageSize, sum, total)
		}
	}
}

func TestTradeSource_FetchPastEnd(t *testing.T) {
	src := seedSource(t, 5)
	rows, err := src.Fetch(context.Background(), nil, 10, 5)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}

func TestTradeSource_Sample(t *testing.T) {
	src := seedSource(t, 30)
	ctx := context.Background()

	rows, err := src.Sample(ctx, nil, 10)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if len(rows) != 10 {
		t.Fatalf("expected 10 rows, got %d", len(rows))
	}
	seen := make(map[uint64]bool)
	for _, r := range rows {
		if seen[r.RowID] {
			t.Errorf("row %d sampled twice", r.RowID)
		}
		seen[r.RowID] = true
	}

	// Shortfall returns every match.
	p := predicate.All(predicate.In{Column: domain.ColTokenMintAddress, Values: []string{"tokB"}})
	rows, err = src.Sample(ctx, p, 1000)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if len(rows) != 10 {
		t.Errorf("expected all 10 tokB rows, got %d", len(rows))
	}
}

func TestTradeSource_SampleDeterministicRandom(t *testing.T) {
	src := seedSource(t, 10)
	// Always pick the last remaining candidate.
	src.SetRandom(func(n int) int { return n - 1 })

	rows, err := src.Sample(context.Background(), nil, 3)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	want := []uint64{9, 0, 1}
	for i, r := range rows {
		if r.RowID != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, r.RowID, want[i])
		}
	}
}

func TestTradeSource_Aggregate(t *testing.T) {
	src := NewTradeSource(domain.Schema{})
	ctx := context.Background()
	_ = src.InsertBulk(ctx, []*domain.TradeRecord{
		{RowID: 0, BuyPriceSOL: f(2)},
		{RowID: 1, BuyPriceSOL: f(4)},
		{RowID: 2, BuyPriceSOL: f(math.Inf(1))},
		{RowID: 3},
	})

	stats, err := src.Aggregate(ctx, nil, predicate.Scaled{Column: predicate.Col(domain.ColBuyPriceSOL), Factor: 10})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if stats.Count != 4 {
		t.Errorf("expected count 4, got %d", stats.Count)
	}
	if *stats.Avg != 30 || *stats.Min != 20 || *stats.Max != 40 {
		t.Errorf("unexpected stats avg=%v min=%v max=%v", *stats.Avg, *stats.Min, *stats.Max)
	}

	ps, err := src.AggregatePrice(ctx, nil, domain.ColBuyPriceSOL, 2)
	if err != nil {
		t.Fatalf("AggregatePrice failed: %v", err)
	}
	if ps.Count != 4 || *ps.Native.Avg != 3 || *ps.Converted.Avg != 6 {
		t.Errorf("unexpected price stats %+v", ps)
	}
}

func TestTradeSource_EmptyAggregate(t *testing.T) {
	src := seedSource(t, 5)
	p := predicate.All(predicate.Equals{Column: domain.ColType, Value: "nothing"})
	stats, err := src.Aggregate(context.Background(), p, predicate.Col(domain.ColBuyPriceSOL))
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if stats.Count != 0 || stats.Avg != nil {
		t.Errorf("expected empty stats, got %+v", stats)
	}
}

func TestTradeSource_ColumnErrors(t *testing.T) {
	schema := domain.NewSchema(
		domain.ColumnDef{Name: domain.ColType, Kind: domain.KindString},
		domain.ColumnDef{Name: domain.ColTokenMintAddress, Kind: domain.KindString},
	)
	src := NewTradeSource(schema)
	ctx := context.Background()

	p := predicate.All(predicate.Compare{Left: predicate.Col(domain.ColBuyPriceSOL), Op: predicate.OpGt, Value: 0})
	if _, err := src.Count(ctx, p); !errors.Is(err, storage.ErrUnknownColumn) {
		t.Errorf("expected ErrUnknownColumn, got %v", err)
	}
	if _, err := src.Aggregate(ctx, nil, predicate.Col(domain.ColType)); !errors.Is(err, storage.ErrNonNumericColumn) {
		t.Errorf("expected ErrNonNumericColumn, got %v", err)
	}
	if _, err := src.AggregatePrice(ctx, nil, domain.ColSellPriceSOL, 1); !errors.Is(err, storage.ErrUnknownColumn) {
		t.Errorf("expected ErrUnknownColumn, got %v", err)
	}
}

func TestTradeSource_TopValues(t *testing.T) {
	src := seedSource(t, 9)
	ctx := context.Background()

	top, err := src.TopValues(ctx, nil, domain.ColTokenMintAddress, 1)
	if err != nil {
		t.Fatalf("TopValues failed: %v", err)
	}
	if len(top) != 1 || top[0].Value != "tokA" || top[0].Count != 6 {
		t.Errorf("unexpected top values %+v", top)
	}

	if _, err := src.TopValues(ctx, nil, domain.ColBuyPriceSOL, 1); !errors.Is(err, storage.ErrNonStringColumn) {
		t.Errorf("expected ErrNonStringColumn, got %v", err)
	}
}

func TestTradeSource_CanceledContext(t *testing.T) {
	src := seedSource(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Count(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
