package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"solana-trade-inspector/internal/birdeye"
	"solana-trade-inspector/internal/domain"
	"solana-trade-inspector/internal/engine"
	"solana-trade-inspector/internal/query"
)

// missingPrice marks a trade the price lookup could not resolve.
const missingPrice = "-"

var errLookupDisabled = errors.New("lookup client not configured")

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRandomSample(w http.ResponseWriter, r *http.Request) {
	p := newParams(r.URL.Query())
	req := engine.SampleRequest{
		Rows:      p.int("rows", 100),
		Tokens:    p.tokens("token_list"),
		Rate:      p.float("sol_price", s.defaultRate),
		PriceType: domain.PriceType(p.str("price_type", "")),
		Unit:      domain.PriceUnit(p.str("price_unit", string(domain.UnitNative))),
		Bucket:    p.intPtr("price_bin"),
	}
	if p.err != nil {
		s.writeError(w, r, p.err)
		return
	}
	if req.PriceType != "" && !req.PriceType.Valid() {
		s.writeError(w, r, query.Invalidf("price_type must be buy_price or sell_price, got %q", req.PriceType))
		return
	}

	res, err := s.engine.Sample(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTopTokens(w http.ResponseWriter, r *http.Request) {
	p := newParams(r.URL.Query())
	n := p.int("top", 20)
	if p.err != nil {
		s.writeError(w, r, p.err)
		return
	}
	top, err := s.engine.TopTokens(r.Context(), n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataBody{Data: top})
}

func (s *Server) handlePriceRanges(w http.ResponseWriter, r *http.Request) {
	p := newParams(r.URL.Query())
	pt := domain.PriceType(p.str("price_type", string(domain.PriceTypeBuy)))
	unit := domain.PriceUnit(p.str("price_unit", string(domain.UnitConverted)))
	rate := p.float("sol_price", s.defaultRate)
	if p.err != nil {
		s.writeError(w, r, p.err)
		return
	}
	res, err := s.engine.PriceRanges(r.Context(), pt, unit, rate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataBody{Data: res})
}

// filterRequest reads the parameters shared by filter_data and batch_bins_data.
func (s *Server) filterRequest(p *params) query.Request {
	return query.Request{
		PriceType:    domain.PriceType(p.str("price_type", string(domain.PriceTypeBuy))),
		Unit:         domain.PriceUnit(p.str("price_unit", string(domain.UnitConverted))),
		Rate:         p.float("sol_price", s.defaultRate),
		Tokens:       p.tokens("token_list"),
		Page:         p.int("page", 1),
		PageSize:     p.int("page_size", query.DefaultPageSize),
		Side:         query.SideFilter(p.str("buy_price_filter", "")),
		AbnormalOnly: p.bool("abnormal_only", false),
		ReturnDetail: p.bool("return_detail", true),
	}
}

func (s *Server) handleFilterData(w http.ResponseWriter, r *http.Request) {
	p := newParams(r.URL.Query())
	req := s.filterRequest(p)
	req.Bucket = p.intPtr("price_bin")
	if p.err != nil {
		s.writeError(w, r, p.err)
		return
	}
	res, err := s.engine.FilterData(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBatchBins(w http.ResponseWriter, r *http.Request) {
	p := newParams(r.URL.Query())
	req := engine.BatchRequest{
		Request:   s.filterRequest(p),
		Buckets:   p.ints("bins", "3,4,5"),
		Mode:      engine.BatchMode(p.str("mode", "")),
		Page:      p.intPtr("page"),
		PageStart: p.intPtr("page_start"),
		PageEnd:   p.intPtr("page_end"),
	}
	if p.err != nil {
		s.writeError(w, r, p.err)
		return
	}
	res, err := s.engine.Batch(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleColumnStats(w http.ResponseWriter, r *http.Request) {
	p := newParams(r.URL.Query())
	column := p.str("column", "")
	tokens := p.tokens("token_list")
	if p.err != nil {
		s.writeError(w, r, p.err)
		return
	}
	res, err := s.engine.ColumnStats(r.Context(), column, tokens)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataBody{Data: res})
}

type priceItem struct {
	TokenMintAddress string `json:"token_mint_address"`
	TradeTime        any    `json:"trade_time"`
}

// tradeTime accepts a number or a numeric string.
func (it priceItem) tradeTime() (int64, bool) {
	switch v := it.TradeTime.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int64(v), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func (s *Server) handleBirdeyePrices(w http.ResponseWriter, r *http.Request) {
	if s.prices == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: errLookupDisabled.Error()})
		return
	}
	var items []priceItem
	if err := decodeBody(r, &items); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(items) > s.maxBatchItems {
		s.writeError(w, r, query.Invalidf("at most %d trades per request, got %d", s.maxBatchItems, len(items)))
		return
	}

	// Items without a usable address or time are not looked up.
	var (
		queries []birdeye.PriceQuery
		index   []int
	)
	for i, it := range items {
		ts, ok := it.tradeTime()
		if !ok || it.TokenMintAddress == "" {
			continue
		}
		queries = append(queries, birdeye.PriceQuery{TokenMintAddress: it.TokenMintAddress, TradeTime: ts})
		index = append(index, i)
	}

	prices := make([]any, len(items))
	for i := range prices {
		prices[i] = missingPrice
	}
	for j, price := range s.prices.BatchPrices(r.Context(), queries) {
		if price != nil {
			prices[index[j]] = *price
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": prices})
}

func (s *Server) handleSlotTimestamps(w http.ResponseWriter, r *http.Request) {
	if s.slots == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: errLookupDisabled.Error()})
		return
	}
	var body struct {
		Slots []int64 `json:"slots"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, query.Invalidf("slots must be a list of integers"))
		return
	}
	if len(body.Slots) > s.maxBatchItems {
		s.writeError(w, r, query.Invalidf("at most %d slots per request, got %d", s.maxBatchItems, len(body.Slots)))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"timestamps": s.slots.SlotTimestamps(r.Context(), body.Slots)})
}
