package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// InboundRequest is the raw inbound delivery: the byte-exact body plus a
// flattened header map. The body must not be re-serialized before
// verification; digests are computed over the exact bytes received.
type InboundRequest struct {
	Source   string
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

// Event is a verified inbound notification. An Event value only exists after
// signature and timestamp checks both passed.
type Event struct {
	ID        string
	Type      string
	CreatedAt time.Time
	Payload   map[string]any
	Raw       []byte
}

// Receipt is the transport-facing acknowledgement decision.
type Receipt struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type HandlerStatus string

const (
	HandlerStatusSucceeded HandlerStatus = "succeeded"
	HandlerStatusFailed    HandlerStatus = "failed"
	HandlerStatusSkipped   HandlerStatus = "skipped"
)

// HandlerResult is the outcome of a single dispatched handler invocation.
// It is never persisted beyond updating the processing record.
type HandlerResult struct {
	Status   HandlerStatus
	Reason   string
	Metadata map[string]any
}

func (r HandlerResult) Failed() bool {
	return r.Status == HandlerStatusFailed
}

// EventHandler processes verified events of a single type.
type EventHandler interface {
	EventType() string
	Handle(ctx context.Context, event Event) (HandlerResult, error)
}

// SecretSource supplies the candidate signing secrets in rotation order.
// More than one secret may be active at a time during rotation windows.
type SecretSource interface {
	Secrets(ctx context.Context) ([][]byte, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// MaintenanceJobMessage describes ledger maintenance work (retention purge,
// retry-ready redispatch) destined for an external job queue.
type MaintenanceJobMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}
