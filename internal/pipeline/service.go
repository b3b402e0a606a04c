package pipeline

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/lumapay/routingd/internal/clock"
	"github.com/lumapay/routingd/internal/metrics"
	"github.com/lumapay/routingd/internal/quote"
	"github.com/lumapay/routingd/internal/router"
	"github.com/lumapay/routingd/internal/scoring"
)

// QuoteRequest is one client request for a conversion quote.
type QuoteRequest struct {
	AmountIn      float64  `json:"amountIn"`
	FromToken     string   `json:"fromToken"`
	ToToken       string   `json:"toToken"`
	Intermediates []string `json:"intermediates,omitempty"`
	MinExpiryMs   int64    `json:"minExpiryMs,omitempty"`
	ClientID      string   `json:"clientId,omitempty"`
	Priority      string   `json:"priority,omitempty"`
}

// QuoteOption is one priced route offered to the client.
type QuoteOption struct {
	QuoteID      string       `json:"quoteId"`
	Route        *quote.Route `json:"route"`
	AmountOut    float64      `json:"amountOut"`
	NetAmountOut float64      `json:"netAmountOut"`
	ExpiryTs     int64        `json:"expiryTs"`
	Type         QuoteType    `json:"type"`
	Confidence   float64      `json:"confidence"`
	ScoringMeta  ScoringMeta  `json:"scoringMeta"`
}

// ExecuteResult is the response to a reservation request.
type ExecuteResult struct {
	ReservationID       string              `json:"reservationId"`
	QuoteID             string              `json:"quoteId"`
	Status              ExecStatus          `json:"status"`
	DepositInstructions DepositInstructions `json:"depositInstructions"`
	ReservedUntil       int64               `json:"reservedUntil"`
	OTCReservationID    string              `json:"otcReservationId,omitempty"`
}

// DepositResult is the webhook response payload.
type DepositResult struct {
	Success     bool   `json:"success"`
	DepositID   string `json:"depositId,omitempty"`
	ExecutionID string `json:"executionId,omitempty"`
}

// Service is the closed-loop pipeline: route discovery, scoring,
// reservation, deposit, execution.
type Service struct {
	router     *router.Router
	scorer     *scoring.Scorer
	quotes     *Quotes
	deposits   *Deposits
	executions *Executions
	driver     *Driver
	clk        clock.Clock
	log        *zap.Logger
}

func NewService(r *router.Router, scorer *scoring.Scorer, quotes *Quotes, deposits *Deposits, executions *Executions, driver *Driver, clk clock.Clock, log *zap.Logger) *Service {
	return &Service{
		router:     r,
		scorer:     scorer,
		quotes:     quotes,
		deposits:   deposits,
		executions: executions,
		driver:     driver,
		clk:        clk,
		log:        log.Named("pipeline"),
	}
}

// Quote resolves the best route for the request, scores it, and stores
// it as a provisional quote. No viable route yields an empty slice,
// never an error: read-path availability beats precision here.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) ([]QuoteOption, error) {
	res := s.router.BestRoute(ctx, req.AmountIn, req.FromToken, req.ToToken,
		req.Intermediates, time.Duration(req.MinExpiryMs)*time.Millisecond)
	if res.Route == nil {
		metrics.QuoteRequests.WithLabelValues("empty").Inc()
		return []QuoteOption{}, nil
	}

	route := res.Route
	score := s.scorer.Score(route.TotalOut, req.FromToken, req.ToToken, otcQuotes(res.RouteQuotes))
	route.Confidence = score.Confidence
	meta := ScoringMeta{
		SettlementDays:   score.SettlementDays,
		CounterpartyRisk: score.CounterpartyRisk,
		TimePenalty:      score.TimePenalty,
		Confidence:       score.Confidence,
	}

	prov, err := s.quotes.StoreProvisional(ctx, route, res.Fallback,
		req.AmountIn, route.TotalOut, score.NetOutput, route.TotalFeesBps, meta, TypeOf(route))
	if err != nil {
		return nil, err
	}

	options := []QuoteOption{{
		QuoteID:      prov.QuoteID,
		Route:        prov.Route,
		AmountOut:    prov.AmountOut,
		NetAmountOut: prov.NetAmountOut,
		ExpiryTs:     prov.ExpiryTs,
		Type:         prov.Type,
		Confidence:   score.Confidence,
		ScoringMeta:  meta,
	}}
	sort.Slice(options, func(i, j int) bool {
		return options[i].NetAmountOut > options[j].NetAmountOut
	})
	metrics.QuoteRequests.WithLabelValues("ok").Inc()
	return options, nil
}

// Execute reserves a provisional quote for the client, issues deposit
// instructions, and creates the execution record that the deposit
// webhook will later set in motion.
func (s *Service) Execute(ctx context.Context, quoteID, clientID string) (*ExecuteResult, error) {
	reserved, err := s.quotes.Reserve(ctx, quoteID, clientID)
	if err != nil {
		return nil, err
	}

	deposit, err := s.deposits.Issue(ctx, reserved)
	if err != nil {
		return nil, err
	}

	execution, err := s.executions.Create(ctx, quoteID, reserved.Route, reserved.FallbackRoute)
	if err != nil {
		return nil, err
	}

	result := &ExecuteResult{
		ReservationID:       reserved.ReservationID,
		QuoteID:             quoteID,
		Status:              execution.Status,
		DepositInstructions: deposit.Instructions,
		ReservedUntil:       reserved.ReservedUntilTs,
	}
	if reserved.OTCReservation != nil {
		result.OTCReservationID = reserved.OTCReservation.OTCReservationID
	}
	return result, nil
}

// ConfirmDeposit applies an external deposit notification. Unknown
// references and internal failures both yield Success=false; the
// webhook contract never surfaces errors to the notifier. Confirmation
// is idempotent: only the first PENDING -> CONFIRMED transition starts
// the execution driver.
func (s *Service) ConfirmDeposit(ctx context.Context, paymentReference string, amountReceived float64, bankTxID string) DepositResult {
	record, first, err := s.deposits.Confirm(ctx, paymentReference, amountReceived, bankTxID)
	if err != nil {
		s.log.Warn("deposit confirmation rejected",
			zap.String("paymentReference", paymentReference), zap.Error(err))
		return DepositResult{Success: false}
	}

	executionID, err := s.executions.IDByQuote(ctx, record.QuoteID)
	if err != nil {
		s.log.Warn("deposit confirmed but execution missing",
			zap.String("quoteId", record.QuoteID), zap.Error(err))
		return DepositResult{Success: true, DepositID: record.DepositID}
	}

	if first {
		metrics.DepositsConfirmed.Inc()
		if _, err := s.executions.MarkExecuting(ctx, executionID); err != nil {
			s.log.Warn("advancing execution after deposit failed",
				zap.String("executionId", executionID), zap.Error(err))
			return DepositResult{Success: true, DepositID: record.DepositID, ExecutionID: executionID}
		}
		s.driver.Start(executionID)
	}
	return DepositResult{Success: true, DepositID: record.DepositID, ExecutionID: executionID}
}

// Status returns the execution record for polling.
func (s *Service) Status(ctx context.Context, executionID string) (*ExecutionRecord, error) {
	return s.executions.Get(ctx, executionID)
}

// otcQuotes filters the scorer's input down to the off-chain legs that
// carry settlement risk.
func otcQuotes(quotes []quote.EdgeQuote) []quote.EdgeQuote {
	out := make([]quote.EdgeQuote, 0, len(quotes))
	for i := range quotes {
		if quotes[i].VenueKind != quote.VenueDEX {
			out = append(out, quotes[i])
		}
	}
	return out
}
