package engine

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-inspector/internal/cache"
	"solana-trade-inspector/internal/domain"
	"solana-trade-inspector/internal/enrich"
	"solana-trade-inspector/internal/predicate"
	"solana-trade-inspector/internal/query"
	"solana-trade-inspector/internal/storage"
	"solana-trade-inspector/internal/storage/memory"
)

func ptr[T any](v T) *T {
	return &v
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingSource counts aggregate calls reaching the data source.
type countingSource struct {
	storage.TradeSource
	aggregates atomic.Int64
}

func (s *countingSource) AggregatePrice(ctx context.Context, p predicate.Predicate, column string, rate float64) (*domain.PriceStats, error) {
	s.aggregates.Add(1)
	return s.TradeSource.AggregatePrice(ctx, p, column, rate)
}

func buy(id uint64, token string, price *float64) *domain.TradeRecord {
	return &domain.TradeRecord{
		RowID:                id,
		Type:                 domain.TypeBuyToken,
		TokenMintAddress:     token,
		TransactionSignature: "sig",
		TradeTimestamp:       ptr(1700000000.0),
		BuyPriceSOL:          price,
	}
}

func newService(t *testing.T, records ...*domain.TradeRecord) *Service {
	t.Helper()
	src := memory.NewTradeSource(domain.Schema{})
	require.NoError(t, src.InsertBulk(context.Background(), records))
	return New(Options{Source: src})
}

func baseRequest() query.Request {
	return query.Request{
		PriceType:    domain.PriceTypeBuy,
		Unit:         domain.UnitNative,
		Rate:         1,
		Page:         1,
		PageSize:     20,
		ReturnDetail: true,
	}
}

func TestDetail_ConvertedBucket(t *testing.T) {
	svc := newService(t, buy(1, "tok", ptr(4.5)), buy(2, "tok", ptr(5.0)))

	req := baseRequest()
	req.Unit = domain.UnitConverted
	req.Rate = 2

	req.Bucket = ptr(0)
	page, err := svc.detail(context.Background(), req)
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	assert.Equal(t, 9.0, page.Rows[0][domain.ColBuyPriceUSD])

	req.Bucket = ptr(1)
	page, err = svc.detail(context.Background(), req)
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	assert.Equal(t, 10.0, page.Rows[0][domain.ColBuyPriceUSD])
}

func TestDetail_CountEqualsSumOfPages(t *testing.T) {
	var recs []*domain.TradeRecord
	for i := 0; i < 47; i++ {
		recs = append(recs, buy(uint64(i), "tok", ptr(float64(i%12))))
	}
	svc := newService(t, recs...)

	req := baseRequest()
	req.Side = query.SideGT0
	req.PageSize = 7

	first, err := svc.detail(context.Background(), req)
	require.NoError(t, err)

	var sum int64
	pages := int((first.Total + int64(req.PageSize) - 1) / int64(req.PageSize))
	for p := 1; p <= pages; p++ {
		req.Page = p
		page, err := svc.detail(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, first.Total, page.Total)
		sum += int64(len(page.Rows))
	}
	assert.Equal(t, first.Total, sum)
}

func TestDetail_InfinitePriceIsSanitized(t *testing.T) {
	svc := newService(t, buy(1, "tok", ptr(math.Inf(1))))

	page, err := svc.detail(context.Background(), baseRequest())
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)

	row := page.Rows[0]
	assert.Contains(t, row, domain.ColBuyPriceSOL)
	assert.Nil(t, row[domain.ColBuyPriceSOL])
	assert.Nil(t, row[domain.ColBuyPriceUSD])
}

func TestDetail_InvalidRequest(t *testing.T) {
	svc := newService(t)

	req := baseRequest()
	req.PageSize = query.MaxPageSize + 1
	_, err := svc.detail(context.Background(), req)
	assert.ErrorIs(t, err, query.ErrInvalidRequest)

	req = baseRequest()
	req.Bucket = ptr(6)
	_, err = svc.detail(context.Background(), req)
	assert.ErrorIs(t, err, query.ErrInvalidRequest)
}

func TestDetail_EmptyResultIsNotAnError(t *testing.T) {
	svc := newService(t, buy(1, "tok", ptr(1.0)))

	req := baseRequest()
	req.Tokens = []string{"other"}
	page, err := svc.detail(context.Background(), req)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.NotNil(t, page.Rows)
	assert.Empty(t, page.Rows)
}

func TestFilterData(t *testing.T) {
	svc := newService(t,
		buy(1, "a", ptr(1.0)),
		buy(2, "a", ptr(3.0)),
		buy(3, "b", ptr(100.0)),
		buy(4, "a", nil),
	)

	req := baseRequest()
	req.Tokens = []string{"a"}
	req.PageSize = 2
	res, err := svc.FilterData(context.Background(), req)
	require.NoError(t, err)

	assert.EqualValues(t, 3, res.Total)
	assert.Len(t, res.Data, 2)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 2, res.PageSize)
	assert.EqualValues(t, 3, res.Summary[KeyCount])
	assert.Equal(t, 2.0, res.Summary[KeyAvgNative])
	assert.Equal(t, 1.0, res.Summary[KeyMinNative])
	assert.Equal(t, 3.0, res.Summary[KeyMaxNative])

	req.ReturnDetail = false
	res, err = svc.FilterData(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, res.Data)
	assert.EqualValues(t, 3, res.Total)
}

func TestSummary_Cached(t *testing.T) {
	mem := memory.NewTradeSource(domain.Schema{})
	require.NoError(t, mem.InsertBulk(context.Background(), []*domain.TradeRecord{buy(1, "tok", ptr(2.0))}))
	src := &countingSource{TradeSource: mem}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	svc := New(Options{Source: src, Cache: cache.New(clock), TTL: time.Minute})

	req := baseRequest()
	first, err := svc.summary(context.Background(), req)
	require.NoError(t, err)

	// Paging does not affect the summary key.
	req.Page, req.PageSize = 3, 50
	second, err := svc.summary(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, src.aggregates.Load())

	clock.Advance(time.Minute)
	_, err = svc.summary(context.Background(), req)
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.aggregates.Load())

	req.Rate = 3
	_, err = svc.summary(context.Background(), req)
	require.NoError(t, err)
	assert.EqualValues(t, 3, src.aggregates.Load())
}

func TestFilterData_UnknownColumn(t *testing.T) {
	src := memory.NewTradeSource(domain.NewSchema(
		domain.ColumnDef{Name: domain.ColType, Kind: domain.KindString},
		domain.ColumnDef{Name: domain.ColTokenMintAddress, Kind: domain.KindString},
	))
	svc := New(Options{Source: src})

	_, err := svc.FilterData(context.Background(), baseRequest())
	require.Error(t, err)

	var qe *query.QueryError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "filter_data", qe.Op)
	assert.ErrorIs(t, err, storage.ErrUnknownColumn)
}

func TestBatch_Init(t *testing.T) {
	var recs []*domain.TradeRecord
	for i := 0; i < 5; i++ {
		recs = append(recs, buy(uint64(i), "tok", ptr(float64(i+1))))
	}
	svc := newService(t, recs...)

	res, err := svc.Batch(context.Background(), BatchRequest{
		Request: baseRequest(),
		Buckets: []int{0, 1},
		Mode:    ModeInit,
	})
	require.NoError(t, err)
	require.Len(t, res, 2)

	b0 := res[0]
	assert.EqualValues(t, 5, b0.Total)
	assert.Len(t, b0.Pages[1], 5)
	assert.Equal(t, 0.0, b0.Low)
	require.NotNil(t, b0.High)
	assert.Equal(t, 10.0, *b0.High)
	assert.EqualValues(t, 5, b0.Summary[KeyCount])

	b1 := res[1]
	assert.Zero(t, b1.Total)
	require.Contains(t, b1.Pages, 1)
	assert.NotNil(t, b1.Pages[1])
	assert.Empty(t, b1.Pages[1])
	assert.Nil(t, b1.Summary[KeyAvgNative])
}

func TestBatch_Range(t *testing.T) {
	var recs []*domain.TradeRecord
	for i := 0; i < 25; i++ {
		r := buy(uint64(i), "tok", ptr(1.0))
		r.TransactionSignature = "sig" + strconv.Itoa(i)
		recs = append(recs, r)
	}
	svc := newService(t, recs...)

	req := baseRequest()
	req.PageSize = 10
	res, err := svc.Batch(context.Background(), BatchRequest{
		Request:   req,
		Buckets:   []int{0, 3},
		PageStart: ptr(2),
		PageEnd:   ptr(3),
	})
	require.NoError(t, err)
	require.Len(t, res, 1, "range mode covers the first bucket only")

	b := res[0]
	assert.EqualValues(t, 25, b.Total)
	require.Len(t, b.Pages, 2)
	assert.Len(t, b.Pages[2], 10)
	assert.Len(t, b.Pages[3], 5, "last page holds the remainder")
	assert.Equal(t, "sig10", b.Pages[2][0][domain.ColTransactionSignature])
	assert.Equal(t, "sig20", b.Pages[3][0][domain.ColTransactionSignature])
}

func TestBatch_SinglePage(t *testing.T) {
	svc := newService(t,
		buy(1, "tok", ptr(1.0)),
		buy(2, "tok", ptr(50.0)),
		buy(3, "tok", ptr(60.0)),
		buy(4, "tok", ptr(1e9)),
	)

	req := baseRequest()
	req.PageSize = 1
	res, err := svc.Batch(context.Background(), BatchRequest{
		Request: req,
		Buckets: []int{5, 1, 1},
		Page:    ptr(2),
	})
	require.NoError(t, err)
	require.Len(t, res, 2)

	assert.EqualValues(t, 2, res[1].Total)
	assert.Len(t, res[1].Pages[2], 1)

	assert.EqualValues(t, 1, res[5].Total)
	assert.Empty(t, res[5].Pages[2])
	assert.Nil(t, res[5].High)
	assert.Equal(t, 100000.0, res[5].Low)
}

func TestBatch_WithoutDetail(t *testing.T) {
	svc := newService(t, buy(1, "tok", ptr(1.0)), buy(2, "tok", ptr(2.0)))

	req := baseRequest()
	req.ReturnDetail = false
	res, err := svc.Batch(context.Background(), BatchRequest{Request: req, Buckets: []int{0}, Mode: ModeInit})
	require.NoError(t, err)

	assert.Empty(t, res[0].Pages)
	assert.EqualValues(t, 2, res[0].Total)
	assert.Equal(t, res[0].Total, res[0].Summary[KeyCount])
}

func TestBatch_InvalidShapes(t *testing.T) {
	svc := newService(t)

	tests := []struct {
		name string
		req  BatchRequest
	}{
		{"no mode", BatchRequest{Request: baseRequest(), Buckets: []int{0}}},
		{"unknown mode", BatchRequest{Request: baseRequest(), Buckets: []int{0}, Mode: "all"}},
		{"no buckets", BatchRequest{Request: baseRequest(), Mode: ModeInit}},
		{"bucket out of range", BatchRequest{Request: baseRequest(), Buckets: []int{6}, Mode: ModeInit}},
		{"negative bucket", BatchRequest{Request: baseRequest(), Buckets: []int{-1}, Mode: ModeInit}},
		{"reversed range", BatchRequest{Request: baseRequest(), Buckets: []int{0}, PageStart: ptr(3), PageEnd: ptr(2)}},
		{"range too long", BatchRequest{Request: baseRequest(), Buckets: []int{0}, PageStart: ptr(1), PageEnd: ptr(MaxRangePages + 1)}},
		{"zero page", BatchRequest{Request: baseRequest(), Buckets: []int{0}, Page: ptr(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Batch(context.Background(), tt.req)
			assert.ErrorIs(t, err, query.ErrInvalidRequest)
		})
	}
}

func TestPriceRanges(t *testing.T) {
	svc := newService(t,
		buy(1, "tok", ptr(1.0)),   // 2 USD
		buy(2, "tok", ptr(4.0)),   // 8
		buy(3, "tok", ptr(6.0)),   // 12
		buy(4, "tok", ptr(1e6)),   // open bucket
		buy(5, "tok", ptr(0.0)),   // excluded
		buy(6, "tok", nil),        // excluded
		buy(7, "tok", ptr(-3.0)),  // excluded
	)

	res, err := svc.PriceRanges(context.Background(), domain.PriceTypeBuy, domain.UnitConverted, 2)
	require.NoError(t, err)

	assert.Equal(t, domain.UnitConverted, res.Unit)
	assert.EqualValues(t, 4, res.Total)
	require.Len(t, res.Bins, 6)

	assert.Equal(t, "0-10", res.Bins[0].Label)
	assert.EqualValues(t, 2, res.Bins[0].Count)
	assert.Equal(t, 50.0, res.Bins[0].Percent)
	assert.EqualValues(t, 1, res.Bins[1].Count)
	assert.Equal(t, 25.0, res.Bins[1].Percent)
	assert.Equal(t, "100K+", res.Bins[5].Label)
	assert.Nil(t, res.Bins[5].High)
	assert.EqualValues(t, 1, res.Bins[5].Count)

	var sum int64
	for _, b := range res.Bins {
		sum += b.Count
	}
	assert.Equal(t, res.Total, sum)
}

func TestFilterData_SideFilterIgnoresPriceType(t *testing.T) {
	rec := buy(1, "tok", ptr(5.0))
	rec.SellPriceSOL = ptr(0.0)
	svc := newService(t, rec)

	req := baseRequest()
	req.PriceType = domain.PriceTypeSell
	req.Side = query.SideGT0
	res, err := svc.FilterData(context.Background(), req)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Total)

	req.Side = query.SideZero
	res, err = svc.FilterData(context.Background(), req)
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.Total)
}

func TestPriceRanges_SellPrice(t *testing.T) {
	sell := func(id uint64, buyPrice, sellPrice *float64) *domain.TradeRecord {
		r := buy(id, "tok", buyPrice)
		r.Type = domain.TypeSellToken
		r.SellPriceSOL = sellPrice
		return r
	}
	svc := newService(t,
		sell(1, ptr(0.0), ptr(3.0)),
		sell(2, ptr(0.0), ptr(30.0)),
		sell(3, ptr(8.0), ptr(0.0)), // excluded: sell price not positive
	)

	res, err := svc.PriceRanges(context.Background(), domain.PriceTypeSell, domain.UnitNative, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Total)
	assert.EqualValues(t, 1, res.Bins[0].Count)
	assert.EqualValues(t, 1, res.Bins[1].Count)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, percent(0, 0))
	assert.Equal(t, 33.33, percent(1, 3))
	assert.Equal(t, 66.67, percent(2, 3))
	assert.Equal(t, 100.0, percent(7, 7))
}

func TestTopTokens(t *testing.T) {
	svc := newService(t,
		buy(1, "b", ptr(1.0)),
		buy(2, "a", ptr(1.0)),
		buy(3, "b", ptr(1.0)),
		buy(4, "c", ptr(1.0)),
		buy(5, "a", ptr(1.0)),
		buy(6, "b", ptr(1.0)),
	)

	top, err := svc.TopTokens(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []TokenCount{
		{TokenMintAddress: "b", Count: 3},
		{TokenMintAddress: "a", Count: 2},
	}, top)

	_, err = svc.TopTokens(context.Background(), 0)
	assert.ErrorIs(t, err, query.ErrInvalidRequest)
	_, err = svc.TopTokens(context.Background(), MaxTopTokens+1)
	assert.ErrorIs(t, err, query.ErrInvalidRequest)
}

func TestSample(t *testing.T) {
	var recs []*domain.TradeRecord
	for i := 0; i < 5; i++ {
		recs = append(recs, buy(uint64(i), "tok", ptr(float64(i+1))))
	}
	recs = append(recs, buy(9, "tok", nil))
	svc := newService(t, recs...)

	res, err := svc.Sample(context.Background(), SampleRequest{
		Rows:      2,
		Rate:      10,
		PriceType: domain.PriceTypeBuy,
		Unit:      domain.UnitNative,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 5, res.Total, "rows without a price are excluded")
	assert.Len(t, res.Data, 2)
	assert.EqualValues(t, 2, res.Summary[KeyCount])
	assert.NotNil(t, res.Summary[KeyAvgConverted])

	res, err = svc.Sample(context.Background(), SampleRequest{Rows: 100, Rate: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 6, res.Total)
	assert.Len(t, res.Data, 6)
	assert.Equal(t, 100, res.PageSize)
	assert.Nil(t, res.Summary[KeyAvg])
}

func TestSample_Empty(t *testing.T) {
	svc := newService(t, buy(1, "tok", ptr(1.0)))

	res, err := svc.Sample(context.Background(), SampleRequest{
		Rows:      10,
		Rate:      1,
		Tokens:    []string{"none"},
		PriceType: domain.PriceTypeBuy,
		Unit:      domain.UnitNative,
	})
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Empty(t, res.Data)
	assert.EqualValues(t, 0, res.Summary[KeyCount])
	assert.Nil(t, res.Summary[KeyAvgNative])
}

func TestSample_InvalidRows(t *testing.T) {
	svc := newService(t)
	for _, rows := range []int{0, MaxSampleRows + 1} {
		_, err := svc.Sample(context.Background(), SampleRequest{Rows: rows, Rate: 1})
		assert.ErrorIs(t, err, query.ErrInvalidRequest)
	}
}

func TestColumnStats(t *testing.T) {
	svc := newService(t,
		buy(1, "a", ptr(2.0)),
		buy(2, "a", ptr(math.NaN())),
		buy(3, "b", ptr(8.0)),
	)

	s, err := svc.ColumnStats(context.Background(), domain.ColBuyPriceSOL, []string{"a"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, s[KeyCount])
	assert.Equal(t, 2.0, s[KeyAvg])

	_, err = svc.ColumnStats(context.Background(), domain.ColTokenMintAddress, nil)
	assert.ErrorIs(t, err, storage.ErrNonNumericColumn)
	var qe *query.QueryError
	assert.True(t, errors.As(err, &qe))
}

func TestRowsAreEnriched(t *testing.T) {
	svc := newService(t, buy(1, "mint", ptr(1.0)))

	page, err := svc.detail(context.Background(), baseRequest())
	require.NoError(t, err)
	row := page.Rows[0]
	assert.Equal(t, enrich.SolscanTxURL+"sig", row[enrich.FieldSolscanLink])
	assert.Equal(t, enrich.GMGNTokenURL+"mint", row[enrich.FieldGMGNLink])
	assert.Equal(t, "2023-11-14 22:13:20", row[enrich.FieldTradeTimeGMT0])
}
