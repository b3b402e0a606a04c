package pipeline

// ExecutionEvent is published on every execution state transition and
// step advance. The WebSocket layer fans these out to subscribers.
type ExecutionEvent struct {
	ExecutionID string     `json:"executionId"`
	QuoteID     string     `json:"quoteId"`
	Status      ExecStatus `json:"status"`
	CurrentStep int        `json:"currentStep"`
	TxHash      string     `json:"txHash,omitempty"`
	Error       string     `json:"error,omitempty"`
	Timestamp   int64      `json:"timestamp"`
}

// EventPublisher decouples the pipeline from the subscription
// transport.
type EventPublisher interface {
	PublishExecution(event ExecutionEvent)
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) PublishExecution(ExecutionEvent) {}
