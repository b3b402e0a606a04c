package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lumapay/routingd/internal/clock"
	"github.com/lumapay/routingd/internal/metrics"
	"github.com/lumapay/routingd/internal/quote"
	"github.com/lumapay/routingd/internal/storage/kvstore"
)

// Executions owns execution records and their state machine.
type Executions struct {
	store kvstore.Store
	clk   clock.Clock
	log   *zap.Logger
	ttl   time.Duration
	pub   EventPublisher
}

func NewExecutions(store kvstore.Store, clk clock.Clock, log *zap.Logger, pub EventPublisher) *Executions {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Executions{
		store: store,
		clk:   clk,
		log:   log.Named("executions"),
		ttl:   DefaultExecutionTTL,
		pub:   pub,
	}
}

// Create builds the execution record for a reserved quote. Routes with
// an OTC step start in PENDING_APPROVAL with an approval token; pure
// on-chain routes start directly in EXECUTING (the driver still only
// runs once the deposit is confirmed).
func (e *Executions) Create(ctx context.Context, quoteID string, route, fallback *quote.Route) (*ExecutionRecord, error) {
	if route == nil {
		return nil, ErrNoRoute
	}
	record := &ExecutionRecord{
		ExecutionID:       uuid.NewString(),
		QuoteID:           quoteID,
		Route:             route,
		FallbackRoute:     fallback,
		Status:            ExecExecuting,
		TransactionHashes: []string{},
		CreatedAt:         e.clk.NowMs(),
	}
	if route.HasOTCStep() {
		record.Status = ExecPendingApproval
		record.ApprovalToken = uuid.NewString()
	}

	if err := e.save(ctx, record); err != nil {
		return nil, errors.Wrap(err, "storing execution record")
	}
	if err := e.store.Set(ctx, execByQuoteKeyPrefix+quoteID, record.ExecutionID, e.ttl); err != nil {
		return nil, errors.Wrap(err, "storing execution quote index")
	}
	metrics.ExecutionTransitions.WithLabelValues(string(record.Status)).Inc()
	e.publish(record, "")
	return record, nil
}

// Get returns an execution record by id.
func (e *Executions) Get(ctx context.Context, executionID string) (*ExecutionRecord, error) {
	raw, err := e.store.Get(ctx, executionKeyPrefix+executionID)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, ErrExecutionNotFound
		}
		return nil, err
	}
	var record ExecutionRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, errors.Wrap(err, "parsing execution record")
	}
	return &record, nil
}

// IDByQuote resolves the execution created for a quote.
func (e *Executions) IDByQuote(ctx context.Context, quoteID string) (string, error) {
	id, err := e.store.Get(ctx, execByQuoteKeyPrefix+quoteID)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return "", ErrExecutionNotFound
		}
		return "", err
	}
	return id, nil
}

// Approve transitions PENDING_APPROVAL -> EXECUTING when the token
// matches.
func (e *Executions) Approve(ctx context.Context, executionID, approvalToken string) (*ExecutionRecord, error) {
	record, err := e.Get(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if record.Status != ExecPendingApproval {
		return nil, ErrNotPendingApproval
	}
	if record.ApprovalToken != approvalToken {
		return nil, ErrBadApprovalToken
	}
	record.Status = ExecExecuting
	if err := e.save(ctx, record); err != nil {
		return nil, err
	}
	metrics.ExecutionTransitions.WithLabelValues(string(ExecExecuting)).Inc()
	e.publish(record, "")
	return record, nil
}

// MarkExecuting moves a PENDING_APPROVAL record into EXECUTING on
// deposit confirmation; a confirmed deposit supersedes the manual
// approval path.
func (e *Executions) MarkExecuting(ctx context.Context, executionID string) (*ExecutionRecord, error) {
	record, err := e.Get(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if record.Status == ExecExecuting {
		return record, nil
	}
	if record.Status != ExecPendingApproval {
		return record, nil
	}
	record.Status = ExecExecuting
	if err := e.save(ctx, record); err != nil {
		return nil, err
	}
	metrics.ExecutionTransitions.WithLabelValues(string(ExecExecuting)).Inc()
	e.publish(record, "")
	return record, nil
}

// AdvanceStep records one completed step and its transaction hash.
func (e *Executions) AdvanceStep(ctx context.Context, executionID, txHash string) (*ExecutionRecord, error) {
	record, err := e.Get(ctx, executionID)
	if err != nil {
		return nil, err
	}
	record.TransactionHashes = append(record.TransactionHashes, txHash)
	record.CurrentStep++
	if err := e.save(ctx, record); err != nil {
		return nil, err
	}
	e.publish(record, txHash)
	return record, nil
}

// Complete terminates a record as COMPLETED.
func (e *Executions) Complete(ctx context.Context, executionID string) (*ExecutionRecord, error) {
	record, err := e.Get(ctx, executionID)
	if err != nil {
		return nil, err
	}
	record.Status = ExecCompleted
	record.CompletedAt = e.clk.NowMs()
	if err := e.save(ctx, record); err != nil {
		return nil, err
	}
	metrics.ExecutionTransitions.WithLabelValues(string(ExecCompleted)).Inc()
	e.publish(record, "")
	return record, nil
}

// Fail handles a step failure. With useFallback and a fallback route
// present, the record swaps onto the fallback and stays EXECUTING with
// its progress reset; the fallback slot is cleared so a second failure
// is terminal. Otherwise the record terminates as FAILED.
func (e *Executions) Fail(ctx context.Context, executionID, execErr string, useFallback bool) (*ExecutionRecord, error) {
	record, err := e.Get(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if useFallback && record.FallbackRoute != nil {
		record.Route = record.FallbackRoute
		record.FallbackRoute = nil
		record.CurrentStep = 0
		record.TransactionHashes = []string{}
		record.Status = ExecExecuting
		record.Error = ""
		e.log.Info("execution retrying on fallback route",
			zap.String("executionId", executionID), zap.String("cause", execErr))
	} else {
		record.Status = ExecFailed
		record.Error = execErr
		record.CompletedAt = e.clk.NowMs()
	}
	if err := e.save(ctx, record); err != nil {
		return nil, err
	}
	metrics.ExecutionTransitions.WithLabelValues(string(record.Status)).Inc()
	e.publish(record, "")
	return record, nil
}

func (e *Executions) save(ctx context.Context, record *ExecutionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return e.store.Set(ctx, executionKeyPrefix+record.ExecutionID, string(data), e.ttl)
}

func (e *Executions) publish(record *ExecutionRecord, txHash string) {
	e.pub.PublishExecution(ExecutionEvent{
		ExecutionID: record.ExecutionID,
		QuoteID:     record.QuoteID,
		Status:      record.Status,
		CurrentStep: record.CurrentStep,
		TxHash:      txHash,
		Error:       record.Error,
		Timestamp:   e.clk.NowMs(),
	})
}
