// Package query turns request parameters into a filter predicate shared by
// the count, fetch and aggregate operations of one logical request.
package query

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"solana-trade-inspector/internal/domain"
)

// Request limits.
const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// SideFilter restricts rows by the sign of the native buy price, whatever
// price type is requested.
type SideFilter string

const (
	SideAny  SideFilter = ""
	SideGT0  SideFilter = "gt0"
	SideZero SideFilter = "eq0"
)

// Valid reports whether the side filter is known.
func (s SideFilter) Valid() bool {
	return s == SideAny || s == SideGT0 || s == SideZero
}

// Request is the parameter set for one logical query.
type Request struct {
	PriceType domain.PriceType
	Unit      domain.PriceUnit
	Rate      float64 // native -> converted conversion rate

	Tokens []string // normalized by ParseTokens
	Bucket *int

	Page     int
	PageSize int

	Side         SideFilter
	AbnormalOnly bool

	// RequirePrice keeps only rows whose native price is present.
	RequirePrice bool

	// PositivePrice keeps only rows whose native price of the requested type
	// is above zero.
	PositivePrice bool

	// ReturnDetail asks for rows in addition to aggregate statistics.
	ReturnDetail bool
}

// ParseTokens splits a comma-separated address list. Entries are trimmed,
// empties dropped and the result deduplicated and sorted.
func ParseTokens(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(raw, ",") {
		t := strings.TrimSpace(part)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Offset returns the row offset of the requested page.
func (r Request) Offset() int {
	if r.Page < 1 {
		return 0
	}
	return (r.Page - 1) * r.PageSize
}

// Validate checks paging and the filter parameters that do not depend on the
// bucket ladder.
func (r Request) Validate() error {
	if err := r.validateFilter(); err != nil {
		return err
	}
	if r.Page < 1 {
		return Invalidf("page must be >= 1, got %d", r.Page)
	}
	if r.PageSize < 1 || r.PageSize > MaxPageSize {
		return Invalidf("page_size must be in [1, %d], got %d", MaxPageSize, r.PageSize)
	}
	return nil
}

func (r Request) validateFilter() error {
	if !r.PriceType.Valid() {
		return Invalidf("price_type must be buy_price or sell_price, got %q", r.PriceType)
	}
	if !r.Unit.Valid() {
		return Invalidf("price_unit must be SOL or USD, got %q", r.Unit)
	}
	if !(r.Rate > 0) || math.IsInf(r.Rate, 0) {
		return Invalidf("conversion rate must be a positive number, got %v", r.Rate)
	}
	if !r.Side.Valid() {
		return Invalidf("unknown side filter %q", r.Side)
	}
	return nil
}

// FilterKey is a canonical encoding of every field that affects which rows
// match and how prices are converted. Page and page size are excluded.
func (r Request) FilterKey() string {
	bucket := "-"
	if r.Bucket != nil {
		bucket = strconv.Itoa(*r.Bucket)
	}
	return fmt.Sprintf("type=%s|unit=%s|rate=%s|tokens=%s|bucket=%s|side=%s|abnormal=%t|require=%t|positive=%t",
		r.PriceType,
		r.Unit,
		strconv.FormatFloat(r.Rate, 'g', -1, 64),
		strings.Join(r.Tokens, ","),
		bucket,
		r.Side,
		r.AbnormalOnly,
		r.RequirePrice,
		r.PositivePrice,
	)
}
