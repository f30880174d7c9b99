package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-webhook-ingest/core"
)

const (
	JobIDRetentionPurge   = "ingest.ledger.purge"
	JobIDFailedRedispatch = "ingest.ledger.redispatch"
)

// ToExecutionMessage maps a ledger maintenance message to go-job.
func ToExecutionMessage(msg *core.MaintenanceJobMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

// FromExecutionMessage maps a go-job message back into the maintenance
// contract.
func FromExecutionMessage(msg *job.ExecutionMessage) *core.MaintenanceJobMessage {
	if msg == nil {
		return nil
	}
	return &core.MaintenanceJobMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

// NewRetentionPurgeMessage builds the daily purge message. The idempotency
// key buckets by UTC day, so re-scheduling within the same day collapses to
// one queued job.
func NewRetentionPurgeMessage(at time.Time) *core.MaintenanceJobMessage {
	day := at.UTC().Format("2006-01-02")
	return &core.MaintenanceJobMessage{
		JobID:          JobIDRetentionPurge,
		Parameters:     map[string]any{"scheduled_for": day},
		IdempotencyKey: JobIDRetentionPurge + ":" + day,
	}
}

// NewFailedRedispatchMessage builds an operator-triggered redispatch of a
// failed processing record. Failed records are terminal for inbound dedupe,
// so re-running one goes through the queue rather than sender redelivery.
func NewFailedRedispatchMessage(source, eventID string) (*core.MaintenanceJobMessage, error) {
	source = strings.TrimSpace(source)
	eventID = strings.TrimSpace(eventID)
	if source == "" || eventID == "" {
		return nil, fmt.Errorf("gojob: redispatch requires source and event id")
	}
	return &core.MaintenanceJobMessage{
		JobID: JobIDFailedRedispatch,
		Parameters: map[string]any{
			"source":   source,
			"event_id": eventID,
		},
		IdempotencyKey: JobIDFailedRedispatch + ":" + source + ":" + eventID,
	}, nil
}

// EnqueuerAdapter bridges the maintenance contract onto a go-job queue.
type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.MaintenanceJobMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: maintenance message is required")
	}
	if strings.TrimSpace(msg.JobID) == "" {
		return fmt.Errorf("gojob: maintenance message job id is required")
	}
	_, err := a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
	return err
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
