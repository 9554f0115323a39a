// Package enrich derives display fields for output rows and normalizes
// values that cannot be serialized.
package enrich

import (
	"math"
	"time"

	"solana-trade-inspector/internal/domain"
)

// Derived field names.
const (
	FieldTradeTimeGMT8 = "trade_time_gmt8"
	FieldTradeTimeGMT0 = "trade_time_gmt0"
	FieldSolscanLink   = "solscan_link"
	FieldGMGNLink      = "gmgn_link"
)

// Link prefixes of the external explorers.
const (
	SolscanTxURL    = "https://solscan.io/tx/"
	GMGNTokenURL    = "https://www.gmgn.ai/sol/token/"
	TimestampLayout = "2006-01-02 15:04:05"
)

// millisThreshold separates second and millisecond epoch timestamps.
const millisThreshold = 1e10

// Display zones. Fixed offsets, no tzdata needed.
var (
	GMT8 = time.FixedZone("GMT+8", 8*60*60)
	GMT0 = time.UTC
)

// Row is an enriched output copy of a trade record.
type Row map[string]any

// Enrich returns an output copy of rec with converted prices, display
// timestamps and explorer links added. The result is not sanitized.
func Enrich(rec *domain.TradeRecord, rate float64) Row {
	row := Row(rec.Fields())

	for _, pt := range []domain.PriceType{domain.PriceTypeBuy, domain.PriceTypeSell} {
		col := pt.ConvertedColumn()
		if _, ok := rec.Extra[col]; ok {
			continue
		}
		row[col] = convert(rec, pt.NativeColumn(), rate)
	}

	row[FieldTradeTimeGMT8] = nil
	row[FieldTradeTimeGMT0] = nil
	if ts, ok := rec.Float(domain.ColTradeTimestamp); ok {
		if s, ok := FormatTimestamp(ts, GMT8); ok {
			row[FieldTradeTimeGMT8] = s
		}
		if s, ok := FormatTimestamp(ts, GMT0); ok {
			row[FieldTradeTimeGMT0] = s
		}
	}

	row[FieldSolscanLink] = link(SolscanTxURL, rec.TransactionSignature)
	row[FieldGMGNLink] = link(GMGNTokenURL, rec.TokenMintAddress)
	return row
}

// Rows enriches and sanitizes a page of records.
func Rows(recs []*domain.TradeRecord, rate float64) []Row {
	out := make([]Row, len(recs))
	for i, rec := range recs {
		out[i] = Clean(Enrich(rec, rate)).(Row)
	}
	return out
}

func convert(rec *domain.TradeRecord, native string, rate float64) any {
	v, ok := rec.Float(native)
	if !ok || math.IsNaN(v) {
		return nil
	}
	return v * rate
}

func link(prefix, id string) string {
	if id == "" {
		return ""
	}
	return prefix + id
}

// FormatTimestamp formats an epoch timestamp in loc. Values below 1e10 are
// seconds, larger values milliseconds. Zero, NaN, infinite and out-of-range
// values report false.
func FormatTimestamp(ts float64, loc *time.Location) (string, bool) {
	t, ok := EpochTime(ts)
	if !ok {
		return "", false
	}
	return t.In(loc).Format(TimestampLayout), true
}

// EpochTime converts a second or millisecond epoch timestamp to a time.
func EpochTime(ts float64) (time.Time, bool) {
	if ts == 0 || math.IsNaN(ts) || math.IsInf(ts, 0) {
		return time.Time{}, false
	}
	secs := ts
	if ts >= millisThreshold {
		secs = ts / 1000
	}
	// Years 1..9999 keep the layout at four digits.
	if secs < -62135596800 || secs > 253402300799 {
		return time.Time{}, false
	}
	whole := math.Floor(secs)
	nanos := int64((secs - whole) * 1e9)
	return time.Unix(int64(whole), nanos), true
}
