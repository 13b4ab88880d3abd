// Package api serves the stored trade tape over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"tradeTape/internal/aggregate"
	"tradeTape/internal/metrics"
	"tradeTape/internal/model"
	"tradeTape/internal/storage"
)

// Reader is the read side of storage.Store.
type Reader interface {
	GetMarket(ctx context.Context, slug string) (model.Market, error)
	ListMarkets(ctx context.Context) ([]model.Market, error)
	ListTrades(ctx context.Context, marketID int64) ([]model.Trade, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// TapePoint is one trade as the replay client consumes it.
type TapePoint struct {
	Time        uint64        `json:"time"`
	Price       float64       `json:"price"`
	Size        float64       `json:"size"`
	Side        model.Side    `json:"side"`
	Outcome     model.Outcome `json:"outcome"`
	BlockNumber uint64        `json:"blockNumber"`
}

// Server routes the read API.
type Server struct {
	store         Reader
	logger        *zap.Logger
	defaultWindow string
}

func NewServer(store Reader, defaultWindow string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultWindow == "" {
		defaultWindow = "1m"
	}
	return &Server{store: store, logger: logger, defaultWindow: defaultWindow}
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.logRequests)

	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")
	router.HandleFunc("/api/markets", s.handleMarkets).Methods("GET")
	router.HandleFunc("/api/trades/{slug}", s.handleTrades).Methods("GET")
	router.HandleFunc("/api/tape/{slug}", s.handleTape).Methods("GET")
	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			respondError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.store.ListMarkets(r.Context())
	if err != nil {
		s.internalError(w, "list markets", err)
		return
	}
	respondJSON(w, markets)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, ok := s.marketTrades(w, r)
	if !ok {
		return
	}
	points := make([]TapePoint, 0, len(trades))
	for _, t := range trades {
		points = append(points, TapePoint{
			Time:        t.Timestamp,
			Price:       t.Price,
			Size:        t.Size,
			Side:        t.Side,
			Outcome:     t.Outcome,
			BlockNumber: t.BlockNumber,
		})
	}
	respondJSON(w, points)
}

func (s *Server) handleTape(w http.ResponseWriter, r *http.Request) {
	window := r.URL.Query().Get("window")
	if window == "" {
		window = s.defaultWindow
	}
	windowSec, err := aggregate.ParseWindow(window)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	trades, ok := s.marketTrades(w, r)
	if !ok {
		return
	}
	bars, err := aggregate.BuildBars(trades, windowSec)
	if err != nil {
		s.internalError(w, "build bars", err)
		return
	}
	respondJSON(w, bars)
}

// marketTrades resolves {slug} and applies the optional from/to filters.
func (s *Server) marketTrades(w http.ResponseWriter, r *http.Request) ([]model.Trade, bool) {
	query := r.URL.Query()
	from, err := aggregate.ParseTimestamp(query.Get("from"))
	if err != nil {
		respondError(w, "invalid from: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	to, err := aggregate.ParseTimestamp(query.Get("to"))
	if err != nil {
		respondError(w, "invalid to: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}

	market, err := s.store.GetMarket(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		if errors.Is(err, storage.ErrMarketNotFound) {
			respondError(w, "Market not found", http.StatusNotFound)
			return nil, false
		}
		s.internalError(w, "get market", err)
		return nil, false
	}

	trades, err := s.store.ListTrades(r.Context(), market.ID)
	if err != nil {
		s.internalError(w, "list trades", err)
		return nil, false
	}
	if from == 0 && to == 0 {
		return trades, true
	}

	filtered := make([]model.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Timestamp < from || (to != 0 && t.Timestamp > to) {
			continue
		}
		filtered = append(filtered, t)
	}
	return filtered, true
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("request failed", zap.String("op", op), zap.Error(err))
	respondError(w, err.Error(), http.StatusInternalServerError)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": message,
	})
}
