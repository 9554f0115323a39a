// Package api exposes the query engine and lookup clients over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"solana-trade-inspector/internal/birdeye"
	"solana-trade-inspector/internal/domain"
	"solana-trade-inspector/internal/engine"
	"solana-trade-inspector/internal/observability"
	"solana-trade-inspector/internal/query"
)

// Engine is the query service consumed by the handlers.
type Engine interface {
	Sample(ctx context.Context, req engine.SampleRequest) (*engine.FilterResult, error)
	TopTokens(ctx context.Context, n int) ([]engine.TokenCount, error)
	PriceRanges(ctx context.Context, pt domain.PriceType, unit domain.PriceUnit, rate float64) (*engine.PriceRanges, error)
	FilterData(ctx context.Context, req query.Request) (*engine.FilterResult, error)
	Batch(ctx context.Context, req engine.BatchRequest) (engine.BatchResult, error)
	ColumnStats(ctx context.Context, column string, tokens []string) (engine.Summary, error)
}

// PriceLookup prices trades; failed items are nil.
type PriceLookup interface {
	BatchPrices(ctx context.Context, queries []birdeye.PriceQuery) []*float64
}

// SlotLookup resolves slot block times; failed slots are nil.
type SlotLookup interface {
	SlotTimestamps(ctx context.Context, slots []int64) map[int64]*int64
}

// Options for creating a Server.
type Options struct {
	Engine Engine
	Prices PriceLookup // optional
	Slots  SlotLookup  // optional
	Logger *zap.Logger

	// DefaultRate is the conversion rate used when sol_price is absent.
	DefaultRate float64

	// MaxBatchItems bounds the body size of the lookup endpoints.
	MaxBatchItems int
}

// DefaultMaxBatchItems is the lookup batch limit when none is configured.
const DefaultMaxBatchItems = 500

// Server routes API requests.
type Server struct {
	engine        Engine
	prices        PriceLookup
	slots         SlotLookup
	logger        *zap.Logger
	defaultRate   float64
	maxBatchItems int
	handler       http.Handler
}

// NewServer creates a server with all routes registered.
func NewServer(opts Options) *Server {
	s := &Server{
		engine:        opts.Engine,
		prices:        opts.Prices,
		slots:         opts.Slots,
		logger:        opts.Logger,
		defaultRate:   opts.DefaultRate,
		maxBatchItems: opts.MaxBatchItems,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.defaultRate <= 0 {
		s.defaultRate = DefaultRate
	}
	if s.maxBatchItems <= 0 {
		s.maxBatchItems = DefaultMaxBatchItems
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.handler = s.recoverer(s.instrument(cors(mux)))
	return s
}

// DefaultRate is the native to converted conversion rate used when neither
// the request nor the configuration provides one.
const DefaultRate = 133

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/random_sample", s.handleRandomSample)
	mux.HandleFunc("GET /api/top_tokens", s.handleTopTokens)
	mux.HandleFunc("GET /api/price_ranges", s.handlePriceRanges)
	mux.HandleFunc("GET /api/filter_data", s.handleFilterData)
	mux.HandleFunc("GET /api/batch_bins_data", s.handleBatchBins)
	mux.HandleFunc("GET /api/column_stats", s.handleColumnStats)
	mux.HandleFunc("POST /api/birdeye_prices", s.handleBirdeyePrices)
	mux.HandleFunc("POST /api/slot_timestamps", s.handleSlotTimestamps)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", observability.Handler())
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// HTTPServer wraps the handler in an http.Server with the given timeouts.
func (s *Server) HTTPServer(addr string, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}
}
