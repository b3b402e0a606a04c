package server

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lumapay/routingd/internal/metrics"
	"github.com/lumapay/routingd/internal/pipeline"
)

// handleQuote serves POST /routing/quote/v2. Validation failures are
// 400; an empty result is a successful response with no quotes.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req pipeline.QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.QuoteRequests.WithLabelValues("invalid").Inc()
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AmountIn <= 0 {
		metrics.QuoteRequests.WithLabelValues("invalid").Inc()
		s.writeError(w, http.StatusBadRequest, "amountIn must be positive")
		return
	}
	if req.FromToken == "" || req.ToToken == "" {
		metrics.QuoteRequests.WithLabelValues("invalid").Inc()
		s.writeError(w, http.StatusBadRequest, "fromToken and toToken are required")
		return
	}

	quotes, err := s.service.Quote(r.Context(), req)
	if err != nil {
		s.log.Warn("quote request failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "quote request failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"quotes": quotes})
}

// handleExecute serves POST /routing/execute/v2: reserve the quote,
// issue deposit instructions, create the execution record.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuoteID  string `json:"quoteId"`
		ClientID string `json:"clientId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.QuoteID == "" || req.ClientID == "" {
		s.writeError(w, http.StatusBadRequest, "quoteId and clientId are required")
		return
	}

	result, err := s.service.Execute(r.Context(), req.QuoteID, req.ClientID)
	switch {
	case errors.Is(err, pipeline.ErrQuoteNotFound):
		s.writeError(w, http.StatusNotFound, "quote not found or expired")
	case errors.Is(err, pipeline.ErrNoRoute):
		s.writeError(w, http.StatusBadRequest, "quote has no route")
	case err != nil:
		s.log.Warn("execute request failed", zap.String("quoteId", req.QuoteID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "execute request failed")
	default:
		s.writeJSON(w, http.StatusOK, result)
	}
}

// handleDepositWebhook serves POST /routing/webhooks/deposit. The
// webhook contract never returns 4xx to the notifier: a missing or
// invalid reference is a 200 with success=false.
func (s *Server) handleDepositWebhook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentReference string  `json:"paymentReference"`
		AmountReceived   float64 `json:"amountReceived"`
		BankTxID         string  `json:"bankTxId,omitempty"`
		Source           string  `json:"source,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentReference == "" {
		s.writeJSON(w, http.StatusOK, pipeline.DepositResult{Success: false})
		return
	}

	result := s.service.ConfirmDeposit(r.Context(), req.PaymentReference, req.AmountReceived, req.BankTxID)
	s.writeJSON(w, http.StatusOK, result)
}

// handleStatus serves GET /routing/status?executionId=...
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	executionID := r.URL.Query().Get("executionId")
	if executionID == "" {
		s.writeError(w, http.StatusBadRequest, "executionId is required")
		return
	}

	record, err := s.service.Status(r.Context(), executionID)
	switch {
	case errors.Is(err, pipeline.ErrExecutionNotFound):
		s.writeError(w, http.StatusNotFound, "execution not found")
	case err != nil:
		s.log.Warn("status lookup failed", zap.String("executionId", executionID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "status lookup failed")
	default:
		s.writeJSON(w, http.StatusOK, record)
	}
}

// handleQuotes serves GET /routing/quotes?fromToken=&toToken=: the live
// quotes the cache holds for a pair.
func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("fromToken")
	to := r.URL.Query().Get("toToken")
	if from == "" || to == "" {
		s.writeError(w, http.StatusBadRequest, "fromToken and toToken are required")
		return
	}

	quotes, err := s.edgeCache.GetCachedByPair(r.Context(), from, to)
	if err != nil {
		s.log.Warn("cache inspection failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "cache inspection failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"quotes": quotes})
}

// handleVenues serves GET /routing/venues: per-provider health.
func (s *Server) handleVenues(w http.ResponseWriter, r *http.Request) {
	healths, err := s.orchestrator.Healths(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "venue health lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"venues": healths})
}

// handleHealth serves GET /routing/health: liveness plus a store ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
