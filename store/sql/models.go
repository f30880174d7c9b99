package sqlstore

import (
	"time"

	"github.com/goliatone/go-webhook-ingest/dedup"
	"github.com/uptrace/bun"
)

// webhookProcessingRecord is the persisted dedup ledger row. The (source,
// event_id) pair carries a unique index; claim_id rotates on every granted
// claim so a settle from a superseded claimant is a no-op.
type webhookProcessingRecord struct {
	bun.BaseModel `bun:"table:webhook_processing_records,alias:wpr"`

	ID            string     `bun:"id,pk"`
	Source        string     `bun:"source,notnull"`
	EventID       string     `bun:"event_id,notnull"`
	ClaimID       string     `bun:"claim_id,notnull"`
	Status        string     `bun:"status,notnull"`
	Attempts      int        `bun:"attempts,notnull"`
	RetryUsed     bool       `bun:"retry_used,notnull"`
	LastError     string     `bun:"last_error"`
	FirstSeenAt   time.Time  `bun:"first_seen_at,nullzero,notnull"`
	LastAttemptAt time.Time  `bun:"last_attempt_at,nullzero,notnull"`
	LeaseExpires  *time.Time `bun:"lease_expires,nullzero"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func processingRecordToDomain(record *webhookProcessingRecord) dedup.Record {
	if record == nil {
		return dedup.Record{}
	}
	result := dedup.Record{
		ID:            record.ID,
		Source:        record.Source,
		EventID:       record.EventID,
		Status:        record.Status,
		Attempts:      record.Attempts,
		RetryUsed:     record.RetryUsed,
		LastError:     record.LastError,
		FirstSeenAt:   record.FirstSeenAt,
		LastAttemptAt: record.LastAttemptAt,
		UpdatedAt:     record.UpdatedAt,
	}
	if record.LeaseExpires != nil {
		result.LeaseExpires = record.LeaseExpires.UTC()
	}
	return result
}
