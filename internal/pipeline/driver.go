package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumapay/routingd/internal/quote"
)

// StepResult is what a step executor returns for one completed hop.
type StepResult struct {
	TxHash string `json:"txHash"`
}

// StepExecutor performs one route step against the real venue: an
// on-chain swap or an OTC settlement instruction. The production
// implementation lives outside this module; the driver only depends on
// this contract.
type StepExecutor interface {
	Execute(ctx context.Context, step quote.RouteStep) (StepResult, error)
}

// Driver walks an EXECUTING record through its route steps
// asynchronously. Callers fire and forget; progress is observable via
// the execution record and the event stream.
type Driver struct {
	executions *Executions
	executor   StepExecutor
	log        *zap.Logger

	mu      sync.Mutex
	running map[string]bool
}

func NewDriver(executions *Executions, executor StepExecutor, log *zap.Logger) *Driver {
	return &Driver{
		executions: executions,
		executor:   executor,
		log:        log.Named("driver"),
		running:    make(map[string]bool),
	}
}

// Start launches the driver for an execution unless one is already
// running for it. Duplicate webhook deliveries land here, so the
// in-process guard matters.
func (d *Driver) Start(executionID string) {
	d.mu.Lock()
	if d.running[executionID] {
		d.mu.Unlock()
		return
	}
	d.running[executionID] = true
	d.mu.Unlock()

	go func() {
		defer func() {
			d.mu.Lock()
			delete(d.running, executionID)
			d.mu.Unlock()
		}()
		d.run(context.Background(), executionID)
	}()
}

// run drives steps until the record leaves EXECUTING. A step failure
// swaps onto the fallback route when one is available; the swap clears
// the fallback slot, so at most one retry happens.
func (d *Driver) run(ctx context.Context, executionID string) {
	for {
		record, err := d.executions.Get(ctx, executionID)
		if err != nil {
			d.log.Warn("driver lost execution record",
				zap.String("executionId", executionID), zap.Error(err))
			return
		}
		if record.Status != ExecExecuting {
			return
		}

		if record.CurrentStep >= len(record.Route.Steps) {
			if _, err := d.executions.Complete(ctx, executionID); err != nil {
				d.log.Warn("completing execution failed",
					zap.String("executionId", executionID), zap.Error(err))
			}
			return
		}

		step := record.Route.Steps[record.CurrentStep]
		result, err := d.executor.Execute(ctx, step)
		if err != nil {
			failed, ferr := d.executions.Fail(ctx, executionID, err.Error(), true)
			if ferr != nil {
				d.log.Warn("recording step failure failed",
					zap.String("executionId", executionID), zap.Error(ferr))
				return
			}
			if failed.Status != ExecExecuting {
				return
			}
			// Fallback engaged; restart from step zero.
			continue
		}

		if _, err := d.executions.AdvanceStep(ctx, executionID, result.TxHash); err != nil {
			d.log.Warn("advancing execution step failed",
				zap.String("executionId", executionID), zap.Error(err))
			return
		}
	}
}

// MockStepExecutor simulates settlement: a short delay and a random
// transaction hash. FailFn, when set, can inject per-step failures.
type MockStepExecutor struct {
	Delay  time.Duration
	FailFn func(step quote.RouteStep) error
}

func (m *MockStepExecutor) Execute(ctx context.Context, step quote.RouteStep) (StepResult, error) {
	if m.FailFn != nil {
		if err := m.FailFn(step); err != nil {
			return StepResult{}, err
		}
	}
	delay := m.Delay
	if delay > 0 {
		select {
		case <-ctx.Done():
			return StepResult{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return StepResult{TxHash: "0x" + hex.EncodeToString(buf)}, nil
}
