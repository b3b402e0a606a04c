// Package pipeline owns the quote-deposit-execution lifecycle: a scored
// route becomes a provisional quote, a client reservation, a deposit to
// wait on, and finally a step-wise execution.
package pipeline

import (
	"errors"
	"time"

	"github.com/lumapay/routingd/internal/quote"
)

var (
	// ErrQuoteNotFound covers absent and expired provisional/reserved
	// quotes; callers cannot tell the two apart.
	ErrQuoteNotFound = errors.New("pipeline: quote not found")

	// ErrDepositNotFound is returned for an unknown payment reference.
	ErrDepositNotFound = errors.New("pipeline: deposit not found")

	// ErrExecutionNotFound is returned for an unknown execution id.
	ErrExecutionNotFound = errors.New("pipeline: execution not found")

	// ErrNoRoute is returned when executing a quote without a route.
	ErrNoRoute = errors.New("pipeline: quote has no route")

	// ErrBadApprovalToken is returned when an approval token mismatches.
	ErrBadApprovalToken = errors.New("pipeline: approval token mismatch")

	// ErrNotPendingApproval is returned when approving an execution that
	// is not waiting for approval.
	ErrNotPendingApproval = errors.New("pipeline: execution not pending approval")
)

// Default lifetimes of pipeline records.
const (
	DefaultProvisionalTTL = 15 * time.Second
	DefaultReservedTTL    = 300 * time.Second
	DefaultDepositTTL     = 3600 * time.Second
	DefaultExecutionTTL   = 86400 * time.Second
)

// QuoteType labels which venue kinds a quoted route crosses.
type QuoteType string

const (
	QuoteOTC    QuoteType = "OTC"
	QuoteDEX    QuoteType = "DEX"
	QuoteOTCDEX QuoteType = "OTC+DEX"
)

// TypeOf classifies a route by the venues its steps cross.
func TypeOf(r *quote.Route) QuoteType {
	if r == nil {
		return QuoteOTC
	}
	otc, dex := r.HasOTCStep(), r.HasDEXStep()
	switch {
	case otc && dex:
		return QuoteOTCDEX
	case dex:
		return QuoteDEX
	default:
		return QuoteOTC
	}
}

// ScoringMeta is the settlement-scoring record attached to a quote.
type ScoringMeta struct {
	SettlementDays   float64 `json:"settlementDays"`
	CounterpartyRisk float64 `json:"counterpartyRisk"`
	TimePenalty      float64 `json:"timePenalty"`
	Confidence       float64 `json:"confidence"`
}

// ProvisionalQuote is a scored route addressable for a short window.
type ProvisionalQuote struct {
	QuoteID       string       `json:"quoteId"`
	Route         *quote.Route `json:"route"`
	FallbackRoute *quote.Route `json:"fallbackRoute,omitempty"`
	AmountIn      float64      `json:"amountIn"`
	AmountOut     float64      `json:"amountOut"`
	NetAmountOut  float64      `json:"netAmountOut"`
	FeeBps        int          `json:"feeBps"`
	ExpiryTs      int64        `json:"expiryTs"`
	CreatedTs     int64        `json:"createdTs"`
	Type          QuoteType    `json:"type"`
	ScoringMeta   ScoringMeta  `json:"scoringMeta"`
}

// OTCReservationMeta holds what the OTC desk handed back at reserve
// time.
type OTCReservationMeta struct {
	OTCReservationID    string `json:"otcReservationId,omitempty"`
	DepositAddress      string `json:"depositAddress,omitempty"`
	DepositInstructions string `json:"depositInstructions,omitempty"`
}

// ReservedQuote is a provisional promoted by client intent to execute.
type ReservedQuote struct {
	ProvisionalQuote
	ReservationID    string              `json:"reservationId"`
	ReservedByClient string              `json:"reservedByClient"`
	ReservedUntilTs  int64               `json:"reservedUntilTs"`
	OTCReservation   *OTCReservationMeta `json:"otcReservationMeta,omitempty"`
}

// DepositStatus is the state of a deposit record.
type DepositStatus string

const (
	DepositPending   DepositStatus = "PENDING"
	DepositConfirmed DepositStatus = "CONFIRMED"
	DepositFailed    DepositStatus = "FAILED"
	DepositExpired   DepositStatus = "EXPIRED"
)

// AccountDetails are the per-method bank coordinates shown to clients.
type AccountDetails map[string]string

// DepositInstructions is the payload a client pays against off-chain.
type DepositInstructions struct {
	Method           string         `json:"method"`
	AccountDetails   AccountDetails `json:"accountDetails"`
	Amount           float64        `json:"amount"`
	PaymentReference string         `json:"paymentReference"`
	QRCodeData       string         `json:"qrCodeData,omitempty"`
	DepositExpiryTs  int64          `json:"depositExpiryTs"`
}

// DepositRecord tracks one expected deposit, bound by payment reference.
type DepositRecord struct {
	DepositID        string              `json:"depositId"`
	QuoteID          string              `json:"quoteId"`
	ClientID         string              `json:"clientId"`
	AmountExpected   float64             `json:"amountExpected"`
	AmountReceived   float64             `json:"amountReceived,omitempty"`
	Instructions     DepositInstructions `json:"instructions"`
	Status           DepositStatus       `json:"status"`
	ReceivedAt       int64               `json:"receivedAt,omitempty"`
	BankTxID         string              `json:"bankTxId,omitempty"`
	PaymentReference string              `json:"paymentReference"`
}

// ExecStatus is the state of an execution record.
type ExecStatus string

const (
	ExecPendingApproval ExecStatus = "PENDING_APPROVAL"
	ExecExecuting       ExecStatus = "EXECUTING"
	ExecCompleted       ExecStatus = "COMPLETED"
	ExecFailed          ExecStatus = "FAILED"
)

// ExecutionRecord is the state of one run of a route.
type ExecutionRecord struct {
	ExecutionID       string       `json:"executionId"`
	QuoteID           string       `json:"quoteId"`
	Route             *quote.Route `json:"route"`
	FallbackRoute     *quote.Route `json:"fallbackRoute,omitempty"`
	Status            ExecStatus   `json:"status"`
	ApprovalToken     string       `json:"approvalToken,omitempty"`
	TransactionHashes []string     `json:"transactionHashes"`
	CurrentStep       int          `json:"currentStep"`
	CreatedAt         int64        `json:"createdAt"`
	CompletedAt       int64        `json:"completedAt,omitempty"`
	Error             string       `json:"error,omitempty"`
}

// Key layout shared by the pipeline stores.
const (
	provisionalKeyPrefix = "quote:prov:"
	reservedKeyPrefix    = "quote:reserved:"
	depositKeyPrefix     = "deposit:"
	depositRefKeyPrefix  = "deposit:ref:"
	executionKeyPrefix   = "exec:"
	execByQuoteKeyPrefix = "execution:quote:"
)
