package clickhouse

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"solana-trade-inspector/internal/domain"
	"solana-trade-inspector/internal/observability"
	"solana-trade-inspector/internal/predicate"
	"solana-trade-inspector/internal/storage"
)

// TradesTable is the table holding the dataset snapshot.
const TradesTable = "trades"

// ColumnsTable registers the kinds of pass-through columns kept in extra.
const ColumnsTable = "trade_columns"

// Columns not exposed through the dataset schema.
const (
	colRowID = "row_id"
	colExtra = "extra"
)

const tradeColumns = `row_id, type, trade_timestamp, transaction_slot,
	trader_wallet_address, token_mint_address, transaction_signature,
	buy_amount, buy_price, buy_price_sol, buy_sol_amount,
	sell_amount, sell_price, sell_price_sol, sell_sol_amount,
	transaction_fee, extra`

// chRows is the subset of driver.Rows used by scanners.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// TradeSource implements storage.TradeSource and storage.TradeWriter using ClickHouse.
// Predicates compile to parameterized WHERE clauses; row_id preserves dataset order.
type TradeSource struct {
	conn *Conn

	mu     sync.Mutex
	schema *domain.Schema
	extras map[string]domain.Kind // pass-through columns read from extra
}

// NewTradeSource creates a new TradeSource.
func NewTradeSource(conn *Conn) *TradeSource {
	return &TradeSource{conn: conn}
}

// Compile-time interface checks.
var (
	_ storage.TradeSource = (*TradeSource)(nil)
	_ storage.TradeWriter = (*TradeSource)(nil)
)

// InsertBulk adds multiple records. Fails entire batch on duplicate row_id.
func (s *TradeSource) InsertBulk(ctx context.Context, records []*domain.TradeRecord) error {
	if len(records) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[uint64]struct{}, len(records))
	ids := make([]uint64, 0, len(records))
	for _, r := range records {
		if r == nil {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[r.RowID]; exists {
			return fmt.Errorf("%w: row_id %d", storage.ErrDuplicateKey, r.RowID)
		}
		seen[r.RowID] = struct{}{}
		ids = append(ids, r.RowID)
	}

	// Check for duplicates against existing DB rows
	var existing uint64
	if err := s.conn.QueryRow(ctx, `SELECT count() FROM trades WHERE has(?, row_id)`, ids).Scan(&existing); err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if existing > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trades (
			row_id, type, trade_timestamp, transaction_slot,
			trader_wallet_address, token_mint_address, transaction_signature,
			buy_amount, buy_price, buy_price_sol, buy_sol_amount,
			sell_amount, sell_price, sell_price_sol, sell_sol_amount,
			transaction_fee, extra
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		extra, err := encodeExtra(r.Extra)
		if err != nil {
			return fmt.Errorf("encode extra columns of row %d: %w", r.RowID, err)
		}
		err = batch.Append(
			r.RowID, r.Type, r.TradeTimestamp, r.TransactionSlot,
			r.TraderWalletAddress, r.TokenMintAddress, r.TransactionSignature,
			r.BuyAmount, r.BuyPrice, r.BuyPriceSOL, r.BuySOLAmount,
			r.SellAmount, r.SellPrice, r.SellPriceSOL, r.SellSOLAmount,
			r.TransactionFee, extra,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// RegisterColumns records the pass-through columns of schema so that
// filters and aggregates can address them. Typed columns are skipped.
func (s *TradeSource) RegisterColumns(ctx context.Context, schema domain.Schema) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+ColumnsTable+" (name, kind)")
	if err != nil {
		return fmt.Errorf("prepare column batch: %w", err)
	}
	n := 0
	for _, col := range schema.Columns() {
		if _, core := domain.CoreKind(col.Name); core {
			continue
		}
		if err := batch.Append(col.Name, col.Kind.String()); err != nil {
			return fmt.Errorf("append column %s: %w", col.Name, err)
		}
		n++
	}
	if n == 0 {
		return batch.Abort()
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send column batch: %w", err)
	}

	s.mu.Lock()
	s.schema, s.extras = nil, nil
	s.mu.Unlock()
	return nil
}

// Schema returns the typed columns of the trades table followed by the
// registered pass-through columns. The result is cached after the first
// successful lookup.
func (s *TradeSource) Schema(ctx context.Context) (domain.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schema != nil {
		return *s.schema, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT name, type
		FROM system.columns
		WHERE database = currentDatabase() AND table = ?
		ORDER BY position
	`, TradesTable)
	if err != nil {
		return domain.Schema{}, fmt.Errorf("query schema: %w", err)
	}
	defer rows.Close()

	var cols []domain.ColumnDef
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return domain.Schema{}, fmt.Errorf("scan schema row: %w", err)
		}
		if name == colRowID || name == colExtra {
			continue
		}
		cols = append(cols, domain.ColumnDef{Name: name, Kind: kindOf(typ)})
	}
	if err := rows.Err(); err != nil {
		return domain.Schema{}, fmt.Errorf("iterate schema rows: %w", err)
	}
	if len(cols) == 0 {
		return domain.Schema{}, fmt.Errorf("table %s not found", TradesTable)
	}

	extras, err := s.registeredColumns(ctx)
	if err != nil {
		return domain.Schema{}, err
	}
	typed := domain.NewSchema(cols...)
	byName := make(map[string]domain.Kind, len(extras))
	for _, col := range extras {
		if _, ok := typed.Lookup(col.Name); ok {
			continue
		}
		byName[col.Name] = col.Kind
		cols = append(cols, col)
	}

	schema := domain.NewSchema(cols...)
	s.schema, s.extras = &schema, byName
	return schema, nil
}

// registeredColumns reads trade_columns. A name registered with more than one
// kind resolves to string. A missing table means no pass-through columns.
func (s *TradeSource) registeredColumns(ctx context.Context) ([]domain.ColumnDef, error) {
	var exists uint8
	if err := s.conn.QueryRow(ctx, "EXISTS TABLE "+ColumnsTable).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check %s: %w", ColumnsTable, err)
	}
	if exists == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, "SELECT name, groupUniqArray(kind) FROM "+ColumnsTable+" GROUP BY name ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", ColumnsTable, err)
	}
	defer rows.Close()

	var extras []domain.ColumnDef
	for rows.Next() {
		var name string
		var kinds []string
		if err := rows.Scan(&name, &kinds); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", ColumnsTable, err)
		}
		extras = append(extras, domain.ColumnDef{Name: name, Kind: mergeKinds(kinds)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", ColumnsTable, err)
	}
	return extras, nil
}

// mergeKinds resolves the kinds a column was registered with. Loads that
// disagree fall back to string.
func mergeKinds(kinds []string) domain.Kind {
	if len(kinds) != 1 {
		return domain.KindString
	}
	k, ok := domain.ParseKind(kinds[0])
	if !ok {
		return domain.KindString
	}
	return k
}

// columnSQL renders typed columns as identifiers and pass-through columns as
// a typed JSON extraction from extra. Call after Schema.
func (s *TradeSource) columnSQL() predicate.ColumnSQL {
	s.mu.Lock()
	extras := s.extras
	s.mu.Unlock()
	return renderColumn(extras)
}

func renderColumn(extras map[string]domain.Kind) predicate.ColumnSQL {
	return func(name string) (string, []any) {
		kind, ok := extras[name]
		if !ok {
			return predicate.QuoteIdent(name), nil
		}
		return "JSONExtract(" + colExtra + ", ?, '" + jsonType(kind) + "')", []any{name}
	}
}

func jsonType(k domain.Kind) string {
	switch k {
	case domain.KindFloat:
		return "Nullable(Float64)"
	case domain.KindInt:
		return "Nullable(Int64)"
	}
	return "Nullable(String)"
}

// kindOf maps a ClickHouse type name to a column kind.
func kindOf(typ string) domain.Kind {
	for {
		inner, ok := unwrapType(typ, "Nullable")
		if !ok {
			inner, ok = unwrapType(typ, "LowCardinality")
		}
		if !ok {
			break
		}
		typ = inner
	}
	switch {
	case strings.HasPrefix(typ, "Float"), strings.HasPrefix(typ, "Decimal"):
		return domain.KindFloat
	case strings.HasPrefix(typ, "Int"), strings.HasPrefix(typ, "UInt"):
		return domain.KindInt
	}
	return domain.KindString
}

func unwrapType(typ, wrapper string) (string, bool) {
	if strings.HasPrefix(typ, wrapper+"(") && strings.HasSuffix(typ, ")") {
		return typ[len(wrapper)+1 : len(typ)-1], true
	}
	return typ, false
}

// where validates p against the table schema and renders it.
func (s *TradeSource) where(ctx context.Context, p predicate.Predicate) (string, []any, error) {
	schema, err := s.Schema(ctx)
	if err != nil {
		return "", nil, err
	}
	if err := predicate.Validate(p, schema); err != nil {
		return "", nil, err
	}
	return predicate.ToSQLWith(p, s.columnSQL())
}

func (s *TradeSource) numericExpr(ctx context.Context, expr predicate.Expr) (string, []any, error) {
	schema, err := s.Schema(ctx)
	if err != nil {
		return "", nil, err
	}
	if err := predicate.ValidateExpr(expr, schema); err != nil {
		return "", nil, err
	}
	return predicate.ExprSQLWith(expr, s.columnSQL())
}

func record(operation string, start time.Time, err error) {
	observability.RecordDBQuery("clickhouse", operation, time.Since(start).Seconds(), err)
}

// Count returns the number of rows matching p.
func (s *TradeSource) Count(ctx context.Context, p predicate.Predicate) (n int64, err error) {
	defer func(start time.Time) { record("count", start, err) }(time.Now())

	where, args, err := s.where(ctx, p)
	if err != nil {
		return 0, err
	}

	var count uint64
	if err := s.conn.QueryRow(ctx, "SELECT count() FROM trades WHERE "+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return int64(count), nil
}

// Sample returns up to n matching rows chosen uniformly without replacement.
func (s *TradeSource) Sample(ctx context.Context, p predicate.Predicate, n int) (_ []*domain.TradeRecord, err error) {
	defer func(start time.Time) { record("sample", start, err) }(time.Now())

	if n < 0 {
		return nil, fmt.Errorf("%w: negative sample size %d", storage.ErrInvalidInput, n)
	}
	where, args, err := s.where(ctx, p)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + tradeColumns + " FROM trades WHERE " + where + " ORDER BY rand() LIMIT ?"
	rows, err := s.conn.Query(ctx, query, append(args, uint64(n))...)
	if err != nil {
		return nil, fmt.Errorf("sample trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// Fetch returns a page of matching rows in row_id order.
func (s *TradeSource) Fetch(ctx context.Context, p predicate.Predicate, offset, limit int) (_ []*domain.TradeRecord, err error) {
	defer func(start time.Time) { record("fetch", start, err) }(time.Now())

	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("%w: offset %d limit %d", storage.ErrInvalidInput, offset, limit)
	}
	where, args, err := s.where(ctx, p)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + tradeColumns + " FROM trades WHERE " + where + " ORDER BY row_id ASC LIMIT ? OFFSET ?"
	rows, err := s.conn.Query(ctx, query, append(args, uint64(limit), uint64(offset))...)
	if err != nil {
		return nil, fmt.Errorf("fetch trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// Aggregate returns statistics of expr over matching rows.
func (s *TradeSource) Aggregate(ctx context.Context, p predicate.Predicate, expr predicate.Expr) (_ *domain.Stats, err error) {
	defer func(start time.Time) { record("aggregate", start, err) }(time.Now())

	value, valueArgs, err := s.numericExpr(ctx, expr)
	if err != nil {
		return nil, err
	}
	where, whereArgs, err := s.where(ctx, p)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT count(),
			countIf(isFinite(v)), avgIf(v, isFinite(v)), minIf(v, isFinite(v)), maxIf(v, isFinite(v))
		FROM (
			SELECT ifNull(toFloat64(` + value + `), nan) AS v
			FROM trades
			WHERE ` + where + `
		)`

	var total, finite uint64
	var avg, lo, hi float64
	args := append(valueArgs, whereArgs...)
	if err := s.conn.QueryRow(ctx, query, args...).Scan(&total, &finite, &avg, &lo, &hi); err != nil {
		return nil, fmt.Errorf("aggregate trades: %w", err)
	}

	stats := buildStats(total, finite, avg, lo, hi)
	return &stats, nil
}

// AggregatePrice returns native and converted statistics of a price column.
func (s *TradeSource) AggregatePrice(ctx context.Context, p predicate.Predicate, column string, rate float64) (_ *domain.PriceStats, err error) {
	defer func(start time.Time) { record("aggregate_price", start, err) }(time.Now())

	native, nativeArgs, err := s.numericExpr(ctx, predicate.Col(column))
	if err != nil {
		return nil, err
	}
	where, whereArgs, err := s.where(ctx, p)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT count(),
			countIf(isFinite(v)), avgIf(v, isFinite(v)), minIf(v, isFinite(v)), maxIf(v, isFinite(v)),
			countIf(isFinite(c)), avgIf(c, isFinite(c)), minIf(c, isFinite(c)), maxIf(c, isFinite(c))
		FROM (
			SELECT ifNull(toFloat64(` + native + `), nan) AS v, v * ? AS c
			FROM trades
			WHERE ` + where + `
		)`

	var total, nFinite, cFinite uint64
	var nAvg, nMin, nMax, cAvg, cMin, cMax float64
	args := append(append(nativeArgs, rate), whereArgs...)
	err = s.conn.QueryRow(ctx, query, args...).Scan(
		&total,
		&nFinite, &nAvg, &nMin, &nMax,
		&cFinite, &cAvg, &cMin, &cMax,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate trade prices: %w", err)
	}

	return &domain.PriceStats{
		Count:     int64(total),
		Native:    buildStats(total, nFinite, nAvg, nMin, nMax),
		Converted: buildStats(total, cFinite, cAvg, cMin, cMax),
	}, nil
}

func buildStats(total, finite uint64, avg, lo, hi float64) domain.Stats {
	s := domain.Stats{Count: int64(total)}
	if finite == 0 {
		return s
	}
	s.Avg, s.Min, s.Max = &avg, &lo, &hi
	return s
}

// TopValues returns the most frequent values of a string column.
func (s *TradeSource) TopValues(ctx context.Context, p predicate.Predicate, column string, limit int) (_ []domain.ValueCount, err error) {
	defer func(start time.Time) { record("top_values", start, err) }(time.Now())

	schema, err := s.Schema(ctx)
	if err != nil {
		return nil, err
	}
	def, ok := schema.Lookup(column)
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownColumn, column)
	}
	if def.Kind != domain.KindString {
		return nil, fmt.Errorf("%w: %s", storage.ErrNonStringColumn, column)
	}
	where, args, err := s.where(ctx, p)
	if err != nil {
		return nil, err
	}

	col, colArgs := s.columnSQL()(column)
	query := "SELECT toString(" + col + ") AS value, count() AS n FROM trades WHERE (" +
		where + ") AND isNotNull(" + col + ") GROUP BY value ORDER BY n DESC, value ASC"
	args = append(append(colArgs, args...), colArgs...)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("top values of %s: %w", column, err)
	}
	defer rows.Close()

	var out []domain.ValueCount
	for rows.Next() {
		var v string
		var n uint64
		if err := rows.Scan(&v, &n); err != nil {
			return nil, fmt.Errorf("scan top value row: %w", err)
		}
		out = append(out, domain.ValueCount{Value: v, Count: int64(n)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top value rows: %w", err)
	}
	return out, nil
}

// scanTrades scans multiple rows selected with tradeColumns.
func scanTrades(rows chRows) ([]*domain.TradeRecord, error) {
	records := make([]*domain.TradeRecord, 0)

	for rows.Next() {
		var r domain.TradeRecord
		var extra string

		err := rows.Scan(
			&r.RowID, &r.Type, &r.TradeTimestamp, &r.TransactionSlot,
			&r.TraderWalletAddress, &r.TokenMintAddress, &r.TransactionSignature,
			&r.BuyAmount, &r.BuyPrice, &r.BuyPriceSOL, &r.BuySOLAmount,
			&r.SellAmount, &r.SellPrice, &r.SellPriceSOL, &r.SellSOLAmount,
			&r.TransactionFee, &extra,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		if r.Extra, err = decodeExtra(extra); err != nil {
			return nil, fmt.Errorf("decode extra columns of row %d: %w", r.RowID, err)
		}
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return records, nil
}

// encodeExtra serializes pass-through columns. JSON has no NaN or infinity,
// so those values are stored as null.
func encodeExtra(extra map[string]any) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}
	clean := make(map[string]any, len(extra))
	for k, v := range extra {
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			v = nil
		}
		clean[k] = v
	}
	return sonic.MarshalString(clean)
}

func decodeExtra(s string) (map[string]any, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var extra map[string]any
	if err := sonic.UnmarshalString(s, &extra); err != nil {
		return nil, err
	}
	return extra, nil
}
