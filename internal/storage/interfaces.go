package storage

import (
	"context"

	"solana-trade-inspector/internal/domain"
	"solana-trade-inspector/internal/predicate"
)

// TradeSource is read access to an immutable trade dataset snapshot.
// Every operation takes the predicate to filter by; a nil predicate matches
// all rows. Implementations are safe for concurrent use and keep no cursor
// state between calls.
type TradeSource interface {
	// Schema returns the columns present in the dataset.
	Schema(ctx context.Context) (domain.Schema, error)

	// Count returns the number of rows matching p.
	Count(ctx context.Context, p predicate.Predicate) (int64, error)

	// Sample returns up to n matching rows selected uniformly without
	// replacement. Fewer matches than n returns all of them.
	Sample(ctx context.Context, p predicate.Predicate, n int) ([]*domain.TradeRecord, error)

	// Fetch returns matching rows in storage order, skipping offset rows and
	// returning at most limit.
	Fetch(ctx context.Context, p predicate.Predicate, offset, limit int) ([]*domain.TradeRecord, error)

	// Aggregate returns count/avg/min/max of expr over matching rows.
	// Count includes every matching row; avg/min/max consider finite values only.
	Aggregate(ctx context.Context, p predicate.Predicate, expr predicate.Expr) (*domain.Stats, error)

	// AggregatePrice returns statistics of a native price column and of the
	// same column multiplied by rate, over the same rows.
	AggregatePrice(ctx context.Context, p predicate.Predicate, column string, rate float64) (*domain.PriceStats, error)

	// TopValues returns the limit most frequent values of a string column
	// among matching rows, by count descending then value ascending.
	TopValues(ctx context.Context, p predicate.Predicate, column string, limit int) ([]domain.ValueCount, error)
}

// TradeWriter loads trade records into a store. Used by loaders only; the
// query path never writes.
type TradeWriter interface {
	// InsertBulk appends records. Fails the entire batch on a duplicate RowID.
	InsertBulk(ctx context.Context, records []*domain.TradeRecord) error
}
