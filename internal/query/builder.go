package query

import (
	"fmt"

	"solana-trade-inspector/internal/bucket"
	"solana-trade-inspector/internal/domain"
	"solana-trade-inspector/internal/predicate"
)

// Filter is the compiled form of a Request. The same Filter must back the
// count and the fetch of one request so totals and pages agree.
type Filter struct {
	// Clauses are the individual conditions; Predicate is their conjunction.
	Clauses   []predicate.Predicate
	Predicate predicate.Predicate

	// NativeColumn is the stored price column of the requested price type.
	NativeColumn string

	// PriceExpr is the price in the requested unit, used for bucket bounds.
	PriceExpr predicate.Expr

	// Bounds of the requested bucket; Bucketed is false when none was requested.
	Bucketed bool
	Low      float64
	High     *float64
}

// Builder composes filters against a bucket ladder.
type Builder struct {
	ladder bucket.Ladder
}

// NewBuilder creates a builder. A nil ladder selects bucket.Default.
func NewBuilder(ladder bucket.Ladder) *Builder {
	if ladder == nil {
		ladder = bucket.Default
	}
	return &Builder{ladder: ladder}
}

// Ladder returns the bucket ladder used by the builder.
func (b *Builder) Ladder() bucket.Ladder {
	return b.ladder
}

// PriceExpr returns the price expression in the requested unit: the native
// column, or native column times rate for the converted unit.
func PriceExpr(pt domain.PriceType, unit domain.PriceUnit, rate float64) predicate.Expr {
	col := predicate.Col(pt.NativeColumn())
	if unit == domain.UnitConverted {
		return predicate.Scaled{Column: col, Factor: rate}
	}
	return col
}

// Build compiles req into a Filter. Paging fields are not checked.
func (b *Builder) Build(req Request) (*Filter, error) {
	if err := req.validateFilter(); err != nil {
		return nil, err
	}

	native := req.PriceType.NativeColumn()
	f := &Filter{
		NativeColumn: native,
		PriceExpr:    PriceExpr(req.PriceType, req.Unit, req.Rate),
	}

	if len(req.Tokens) > 0 {
		f.Clauses = append(f.Clauses, predicate.In{Column: domain.ColTokenMintAddress, Values: req.Tokens})
	}

	// buy_price_filter always refers to the buy column.
	switch req.Side {
	case SideGT0:
		f.Clauses = append(f.Clauses, predicate.Compare{Left: predicate.Col(domain.ColBuyPriceSOL), Op: predicate.OpGt, Value: 0})
	case SideZero:
		f.Clauses = append(f.Clauses, predicate.Compare{Left: predicate.Col(domain.ColBuyPriceSOL), Op: predicate.OpEq, Value: 0})
	}

	if req.RequirePrice {
		f.Clauses = append(f.Clauses, predicate.NotNull{Column: native})
	}
	if req.PositivePrice {
		f.Clauses = append(f.Clauses, predicate.Compare{Left: predicate.Col(native), Op: predicate.OpGt, Value: 0})
	}

	if req.Bucket != nil {
		low, high, err := b.ladder.BoundsOf(*req.Bucket)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		f.Bucketed, f.Low, f.High = true, low, high
		f.Clauses = append(f.Clauses, predicate.Compare{Left: f.PriceExpr, Op: predicate.OpGe, Value: low})
		if high != nil {
			f.Clauses = append(f.Clauses, predicate.Compare{Left: f.PriceExpr, Op: predicate.OpLt, Value: *high})
		}
	}

	if req.AbnormalOnly {
		f.Clauses = append(f.Clauses, AbnormalCondition())
	}

	f.Predicate = predicate.All(f.Clauses...)
	return f, nil
}

// AbnormalCondition matches rows whose own trade direction lacks a valid
// price: a buy with null, zero or NaN buy price, or a sell with null, zero or
// NaN sell price. It checks the direction-specific column regardless of the
// requested price type.
func AbnormalCondition() predicate.Predicate {
	return predicate.Any(
		invalidPrice(domain.TypeBuyToken, domain.ColBuyPriceSOL),
		invalidPrice(domain.TypeSellToken, domain.ColSellPriceSOL),
	)
}

func invalidPrice(tradeType, col string) predicate.Predicate {
	return predicate.All(
		predicate.Equals{Column: domain.ColType, Value: tradeType},
		predicate.Any(
			predicate.Missing{Column: col},
			predicate.Compare{Left: predicate.Col(col), Op: predicate.OpEq, Value: 0},
		),
	)
}
