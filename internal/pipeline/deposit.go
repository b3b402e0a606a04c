package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lumapay/routingd/internal/clock"
	"github.com/lumapay/routingd/internal/storage/kvstore"
	"github.com/lumapay/routingd/internal/token"
)

// Banking fees routinely shave a few cents off a transfer; deposits
// within 0.1% of the expected amount are accepted with a warning.
var depositTolerance = decimal.NewFromFloat(0.001)

// DepositConfig carries the receiving account details handed to
// clients, keyed by payment method, plus the PIX identity for QR codes.
type DepositConfig struct {
	Accounts map[string]AccountDetails
	PIX      PIXConfig
}

// Deposits issues deposit instructions and confirms incoming payments.
type Deposits struct {
	store kvstore.Store
	clk   clock.Clock
	log   *zap.Logger
	cfg   DepositConfig
	ttl   time.Duration
}

func NewDeposits(store kvstore.Store, clk clock.Clock, log *zap.Logger, cfg DepositConfig) *Deposits {
	return &Deposits{
		store: store,
		clk:   clk,
		log:   log.Named("deposits"),
		cfg:   cfg,
		ttl:   DefaultDepositTTL,
	}
}

// PaymentReference derives the client-visible reference:
// "r{reservationId[:8]}-{clientId[:8]}". Unique within the deposit TTL
// window because reservation ids are.
func PaymentReference(reservationID, clientID string) string {
	return fmt.Sprintf("r%s-%s", clip(reservationID, 8), clip(clientID, 8))
}

// Issue creates the deposit record and instructions for a reservation.
// Two keys are written: the record under its deposit id and a reference
// index resolving the payment reference. The window between the two
// writes is tolerated; both carry the same TTL and orphans expire.
func (d *Deposits) Issue(ctx context.Context, reserved *ReservedQuote) (*DepositRecord, error) {
	sourceToken := reserved.Route.FromToken
	method := token.DepositMethod(sourceToken)
	ref := PaymentReference(reserved.ReservationID, reserved.ReservedByClient)

	details, ok := d.cfg.Accounts[method]
	if !ok {
		details = d.cfg.Accounts[token.MethodBankTransfer]
	}

	instructions := DepositInstructions{
		Method:           method,
		AccountDetails:   details,
		Amount:           reserved.AmountIn,
		PaymentReference: ref,
		DepositExpiryTs:  reserved.ReservedUntilTs,
	}
	if method == token.MethodPIX {
		instructions.QRCodeData = BuildPIXCode(d.cfg.PIX, decimal.NewFromFloat(reserved.AmountIn), ref)
	}

	record := &DepositRecord{
		DepositID:        uuid.NewString(),
		QuoteID:          reserved.QuoteID,
		ClientID:         reserved.ReservedByClient,
		AmountExpected:   reserved.AmountIn,
		Instructions:     instructions,
		Status:           DepositPending,
		PaymentReference: ref,
	}

	if err := d.writeRecord(ctx, record); err != nil {
		return nil, errors.Wrap(err, "storing deposit record")
	}
	if err := d.store.Set(ctx, depositRefKeyPrefix+ref, record.DepositID, d.ttl); err != nil {
		return nil, errors.Wrap(err, "storing deposit reference index")
	}
	return record, nil
}

// Confirm marks the deposit for paymentReference as received. The
// second return reports whether this call performed the PENDING ->
// CONFIRMED transition; repeated webhook deliveries re-apply the same
// content without re-triggering execution.
//
// An amount outside the 0.1% tolerance is warned about, not rejected:
// small overages and undershoots from banking fees are admitted.
func (d *Deposits) Confirm(ctx context.Context, paymentReference string, amountReceived float64, bankTxID string) (*DepositRecord, bool, error) {
	record, err := d.GetByReference(ctx, paymentReference)
	if err != nil {
		return nil, false, err
	}

	expected := decimal.NewFromFloat(record.AmountExpected)
	received := decimal.NewFromFloat(amountReceived)
	if diff := received.Sub(expected).Abs(); diff.GreaterThan(expected.Mul(depositTolerance)) {
		d.log.Warn("deposit amount mismatch",
			zap.String("paymentReference", paymentReference),
			zap.String("expected", expected.String()),
			zap.String("received", received.String()))
	}

	first := record.Status == DepositPending
	record.Status = DepositConfirmed
	record.AmountReceived = amountReceived
	record.BankTxID = bankTxID
	if first {
		record.ReceivedAt = d.clk.NowMs()
	}

	if err := d.writeRecord(ctx, record); err != nil {
		return nil, false, errors.Wrap(err, "updating deposit record")
	}
	return record, first, nil
}

// Get returns a deposit record by id.
func (d *Deposits) Get(ctx context.Context, depositID string) (*DepositRecord, error) {
	raw, err := d.store.Get(ctx, depositKeyPrefix+depositID)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, ErrDepositNotFound
		}
		return nil, err
	}
	var record DepositRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, errors.Wrap(err, "parsing deposit record")
	}
	return &record, nil
}

// GetByReference resolves a payment reference through the index.
func (d *Deposits) GetByReference(ctx context.Context, paymentReference string) (*DepositRecord, error) {
	depositID, err := d.store.Get(ctx, depositRefKeyPrefix+paymentReference)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, ErrDepositNotFound
		}
		return nil, err
	}
	return d.Get(ctx, depositID)
}

func (d *Deposits) writeRecord(ctx context.Context, record *DepositRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return d.store.Set(ctx, depositKeyPrefix+record.DepositID, string(data), d.ttl)
}
