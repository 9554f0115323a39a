package engine

import (
	"solana-trade-inspector/internal/domain"
	"solana-trade-inspector/internal/enrich"
)

// Limits of the sampling and ranking operations.
const (
	MaxSampleRows = 10000
	MaxTopTokens  = 1000
)

// Summary is a sanitized statistics object: a count plus nullable avg, min
// and max values, either for one expression or for a price in both units.
type Summary = map[string]any

// Summary keys.
const (
	KeyCount        = "count"
	KeyAvg          = "avg"
	KeyMin          = "min"
	KeyMax          = "max"
	KeyAvgNative    = "avg_sol"
	KeyMinNative    = "min_sol"
	KeyMaxNative    = "max_sol"
	KeyAvgConverted = "avg_usd"
	KeyMinConverted = "min_usd"
	KeyMaxConverted = "max_usd"
)

// rowPage is one page of enriched rows and the size of the full matching set.
type rowPage struct {
	Rows  []enrich.Row `json:"rows"`
	Total int64        `json:"total"`
}

// FilterResult is a page of rows together with the summary of all matches.
type FilterResult struct {
	Data     []enrich.Row `json:"data"`
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	Summary  Summary      `json:"summary"`
}

// TokenCount is the number of trades of one token.
type TokenCount struct {
	TokenMintAddress string `json:"token_mint_address"`
	Count            int64  `json:"count"`
}

func priceSummary(ps *domain.PriceStats) Summary {
	return enrich.Clean(map[string]any{
		KeyCount:        ps.Count,
		KeyAvgNative:    ps.Native.Avg,
		KeyMinNative:    ps.Native.Min,
		KeyMaxNative:    ps.Native.Max,
		KeyAvgConverted: ps.Converted.Avg,
		KeyMinConverted: ps.Converted.Min,
		KeyMaxConverted: ps.Converted.Max,
	}).(map[string]any)
}

func statsSummary(count int64, s *domain.Stats) Summary {
	m := map[string]any{KeyCount: count, KeyAvg: nil, KeyMin: nil, KeyMax: nil}
	if s != nil {
		m[KeyAvg], m[KeyMin], m[KeyMax] = s.Avg, s.Min, s.Max
	}
	return enrich.Clean(m).(map[string]any)
}
