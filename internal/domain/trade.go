package domain

import "math"

// TradeRecord is one immutable row of the trade dataset snapshot.
// Nullable numeric columns are pointers; NaN and infinities are kept as stored.
type TradeRecord struct {
	RowID uint64 // position in the dataset, defines storage order

	Type                 string   // buy_token | sell_token | liquidity events
	TradeTimestamp       *float64 // Unix epoch, seconds or milliseconds
	TransactionSlot      *int64   // Solana slot
	TraderWalletAddress  string
	TokenMintAddress     string
	TransactionSignature string

	BuyAmount     *float64
	BuyPrice      *float64
	BuyPriceSOL   *float64
	BuySOLAmount  *float64
	SellAmount    *float64
	SellPrice     *float64
	SellPriceSOL  *float64
	SellSOLAmount *float64

	TransactionFee *float64

	// Extra holds pass-through provenance columns (pool reserves, token creation
	// metadata, liquidity events) keyed by column name.
	Extra map[string]any
}

// Record type constants
const (
	TypeBuyToken  = "buy_token"
	TypeSellToken = "sell_token"
)

func (r *TradeRecord) floatField(col string) (**float64, bool) {
	switch col {
	case ColTradeTimestamp:
		return &r.TradeTimestamp, true
	case ColBuyAmount:
		return &r.BuyAmount, true
	case ColBuyPrice:
		return &r.BuyPrice, true
	case ColBuyPriceSOL:
		return &r.BuyPriceSOL, true
	case ColBuySOLAmount:
		return &r.BuySOLAmount, true
	case ColSellAmount:
		return &r.SellAmount, true
	case ColSellPrice:
		return &r.SellPrice, true
	case ColSellPriceSOL:
		return &r.SellPriceSOL, true
	case ColSellSOLAmount:
		return &r.SellSOLAmount, true
	case ColTransactionFee:
		return &r.TransactionFee, true
	}
	return nil, false
}

func (r *TradeRecord) stringField(col string) (*string, bool) {
	switch col {
	case ColType:
		return &r.Type, true
	case ColTraderWalletAddress:
		return &r.TraderWalletAddress, true
	case ColTokenMintAddress:
		return &r.TokenMintAddress, true
	case ColTransactionSignature:
		return &r.TransactionSignature, true
	}
	return nil, false
}

// Float returns the numeric value of a column. ok is false when the column
// is null or not numeric.
func (r *TradeRecord) Float(col string) (float64, bool) {
	if f, ok := r.floatField(col); ok {
		if *f == nil {
			return 0, false
		}
		return **f, true
	}
	if col == ColTransactionSlot {
		if r.TransactionSlot == nil {
			return 0, false
		}
		return float64(*r.TransactionSlot), true
	}
	switch v := r.Extra[col].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// String returns the string value of a column. ok is false when the column
// is null or not a string.
func (r *TradeRecord) String(col string) (string, bool) {
	if s, ok := r.stringField(col); ok {
		return *s, true
	}
	v, ok := r.Extra[col].(string)
	return v, ok
}

// Set assigns a column value. v must be nil, string, float64, int64 or uint64;
// unknown columns are stored in Extra.
func (r *TradeRecord) Set(col string, v any) {
	if f, ok := r.floatField(col); ok {
		*f = toFloatPtr(v)
		return
	}
	if s, ok := r.stringField(col); ok {
		str, _ := v.(string)
		*s = str
		return
	}
	if col == ColTransactionSlot {
		r.TransactionSlot = toIntPtr(v)
		return
	}
	if r.Extra == nil {
		r.Extra = make(map[string]any)
	}
	r.Extra[col] = v
}

// Fields returns a copy of the record keyed by column name.
// Null numeric columns map to nil.
func (r *TradeRecord) Fields() map[string]any {
	out := make(map[string]any, len(CoreColumns)+len(r.Extra))
	for k, v := range r.Extra {
		out[k] = v
	}
	for _, c := range CoreColumns {
		switch c.Kind {
		case KindString:
			s, _ := r.String(c.Name)
			out[c.Name] = s
		default:
			if v, ok := r.Float(c.Name); ok {
				if c.Name == ColTransactionSlot {
					out[c.Name] = *r.TransactionSlot
				} else {
					out[c.Name] = v
				}
			} else {
				out[c.Name] = nil
			}
		}
	}
	return out
}

func toFloatPtr(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint64:
		f = float64(t)
	case int:
		f = float64(t)
	default:
		return nil
	}
	return &f
}

func toIntPtr(v any) *int64 {
	var i int64
	switch t := v.(type) {
	case int64:
		i = t
	case uint64:
		i = int64(t)
	case int:
		i = int64(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		i = int64(t)
	default:
		return nil
	}
	return &i
}
