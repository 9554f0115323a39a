package domain

// PriceType selects the side of the trade whose price is inspected.
type PriceType string

const (
	PriceTypeBuy  PriceType = "buy_price"
	PriceTypeSell PriceType = "sell_price"
)

// Valid reports whether the price type is known.
func (p PriceType) Valid() bool {
	return p == PriceTypeBuy || p == PriceTypeSell
}

// NativeColumn returns the column holding the price in the base asset (SOL).
func (p PriceType) NativeColumn() string {
	if p == PriceTypeSell {
		return ColSellPriceSOL
	}
	return ColBuyPriceSOL
}

// ConvertedColumn returns the name of the derived converted price column.
func (p PriceType) ConvertedColumn() string {
	if p == PriceTypeSell {
		return ColSellPriceUSD
	}
	return ColBuyPriceUSD
}

// PriceUnit selects the unit prices are compared and reported in.
type PriceUnit string

const (
	UnitNative    PriceUnit = "SOL"
	UnitConverted PriceUnit = "USD"
)

// Valid reports whether the unit is known.
func (u PriceUnit) Valid() bool {
	return u == UnitNative || u == UnitConverted
}

// Stats holds count and finite-value statistics of a numeric expression.
// Count is the number of matching rows; Avg, Min and Max are nil when no
// matching row has a finite value.
type Stats struct {
	Count int64
	Avg   *float64
	Min   *float64
	Max   *float64
}

// PriceStats holds native and converted statistics of a price column
// computed over the same rows.
type PriceStats struct {
	Count     int64
	Native    Stats
	Converted Stats
}

// ValueCount is a distinct column value with its number of occurrences.
type ValueCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}
