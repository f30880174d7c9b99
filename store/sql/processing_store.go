package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhook-ingest/dedup"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProcessingStore backs the dedup ledger with a relational table. Claim
// atomicity rides on the unique (source, event_id) index: the first insert
// wins and every loser takes the read path. The stale-pending takeover is a
// compare-and-swap on claim_id, so concurrent redeliveries racing for the
// single retry resolve to exactly one winner.
type ProcessingStore struct {
	db        *bun.DB
	repo      repository.Repository[*webhookProcessingRecord]
	retention time.Duration
	Now       func() time.Time
}

func NewProcessingStore(db *bun.DB, retention time.Duration) (*ProcessingStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if retention <= 0 {
		retention = dedup.DefaultRetention
	}
	repo := repository.NewRepository[*webhookProcessingRecord](db, processingRecordHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid processing record repository wiring: %w", err)
		}
	}
	return &ProcessingStore{
		db:        db,
		repo:      repo,
		retention: retention,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *ProcessingStore) Claim(
	ctx context.Context,
	source string,
	eventID string,
	lease time.Duration,
) (dedup.Claim, bool, error) {
	if s == nil || s.db == nil {
		return dedup.Claim{}, false, fmt.Errorf("sqlstore: processing store is not configured")
	}
	source = strings.TrimSpace(source)
	eventID = strings.TrimSpace(eventID)
	if source == "" || eventID == "" {
		return dedup.Claim{}, false, fmt.Errorf("sqlstore: source and event id are required")
	}
	if lease <= 0 {
		lease = dedup.DefaultLease
	}

	now := s.now()
	leaseExpires := now.Add(lease)
	claimID := uuid.NewString()
	record := &webhookProcessingRecord{
		ID:            uuid.NewString(),
		Source:        source,
		EventID:       eventID,
		ClaimID:       claimID,
		Status:        dedup.StatusPending,
		Attempts:      1,
		FirstSeenAt:   now,
		LastAttemptAt: now,
		LeaseExpires:  &leaseExpires,
		UpdatedAt:     now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return s.claimExisting(ctx, source, eventID, lease)
		}
		return dedup.Claim{}, false, err
	}
	return dedup.Claim{ClaimID: claimID, Record: processingRecordToDomain(record)}, true, nil
}

func (s *ProcessingStore) claimExisting(
	ctx context.Context,
	source string,
	eventID string,
	lease time.Duration,
) (dedup.Claim, bool, error) {
	existing, err := s.getRecord(ctx, source, eventID)
	if err != nil {
		return dedup.Claim{}, false, err
	}

	now := s.now()
	switch existing.Status {
	case dedup.StatusDone, dedup.StatusFailed:
		return dedup.Claim{Record: processingRecordToDomain(existing)}, false, nil
	case dedup.StatusPending:
	default:
		return dedup.Claim{}, false, fmt.Errorf(
			"sqlstore: record for source %q event %q has unknown status %q",
			source, eventID, existing.Status,
		)
	}

	if existing.LeaseExpires != nil && now.Before(*existing.LeaseExpires) {
		return dedup.Claim{Record: processingRecordToDomain(existing)}, false, nil
	}

	if existing.RetryUsed {
		// Second lease expiry: spend the record, no further retries.
		_, err = s.db.NewUpdate().
			Model((*webhookProcessingRecord)(nil)).
			Set("status = ?", dedup.StatusFailed).
			Set("last_error = ?", "dedup: stale processing retry exhausted").
			Set("lease_expires = NULL").
			Set("updated_at = ?", now).
			Where("source = ?", source).
			Where("event_id = ?", eventID).
			Where("status = ?", dedup.StatusPending).
			Where("claim_id = ?", existing.ClaimID).
			Exec(ctx)
		if err != nil {
			return dedup.Claim{}, false, err
		}
		settled, getErr := s.getRecord(ctx, source, eventID)
		if getErr != nil {
			return dedup.Claim{}, false, getErr
		}
		return dedup.Claim{Record: processingRecordToDomain(settled)}, false, nil
	}

	// Expired lease with the retry unspent: CAS on claim_id grants the one
	// self-healing retry to exactly one concurrent redelivery.
	claimID := uuid.NewString()
	leaseExpires := now.Add(lease)
	result, err := s.db.NewUpdate().
		Model((*webhookProcessingRecord)(nil)).
		Set("claim_id = ?", claimID).
		Set("retry_used = ?", true).
		Set("attempts = attempts + 1").
		Set("last_attempt_at = ?", now).
		Set("lease_expires = ?", leaseExpires).
		Set("updated_at = ?", now).
		Where("source = ?", source).
		Where("event_id = ?", eventID).
		Where("status = ?", dedup.StatusPending).
		Where("retry_used = ?", false).
		Where("claim_id = ?", existing.ClaimID).
		Exec(ctx)
	if err != nil {
		return dedup.Claim{}, false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return dedup.Claim{}, false, err
	}
	if affected == 0 {
		lost, getErr := s.getRecord(ctx, source, eventID)
		if getErr != nil {
			return dedup.Claim{}, false, getErr
		}
		return dedup.Claim{Record: processingRecordToDomain(lost)}, false, nil
	}

	claimed, err := s.getRecord(ctx, source, eventID)
	if err != nil {
		return dedup.Claim{}, false, err
	}
	return dedup.Claim{ClaimID: claimID, Record: processingRecordToDomain(claimed)}, true, nil
}

func (s *ProcessingStore) Complete(ctx context.Context, claimID string) error {
	return s.settle(ctx, claimID, dedup.StatusDone, "")
}

func (s *ProcessingStore) Fail(ctx context.Context, claimID string, cause error) error {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	return s.settle(ctx, claimID, dedup.StatusFailed, reason)
}

// settle is idempotent per claim: a second settle, or a settle from a
// claimant whose lease was taken over, matches zero rows and returns nil.
func (s *ProcessingStore) settle(ctx context.Context, claimID string, status string, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: processing store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("sqlstore: claim id is required")
	}
	_, err := s.db.NewUpdate().
		Model((*webhookProcessingRecord)(nil)).
		Set("status = ?", status).
		Set("last_error = ?", reason).
		Set("lease_expires = NULL").
		Set("updated_at = ?", s.now()).
		Where("claim_id = ?", claimID).
		Where("status = ?", dedup.StatusPending).
		Exec(ctx)
	return err
}

func (s *ProcessingStore) Get(ctx context.Context, source string, eventID string) (dedup.Record, error) {
	record, err := s.getRecord(ctx, strings.TrimSpace(source), strings.TrimSpace(eventID))
	if err != nil {
		return dedup.Record{}, err
	}
	return processingRecordToDomain(record), nil
}

func (s *ProcessingStore) getRecord(
	ctx context.Context,
	source string,
	eventID string,
) (*webhookProcessingRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: processing store is not configured")
	}
	record := &webhookProcessingRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.source = ?", source).
		Where("?TableAlias.event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf(
				"sqlstore: no processing record for source %q event %q",
				source, eventID,
			)
		}
		return nil, err
	}
	return record, nil
}

// PurgeExpired deletes settled records older than the retention window.
// Pending records are live claims and never purged.
func (s *ProcessingStore) PurgeExpired(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: processing store is not configured")
	}
	cutoff := s.now().Add(-s.retention)
	result, err := s.db.NewDelete().
		Model((*webhookProcessingRecord)(nil)).
		Where("status != ?", dedup.StatusPending).
		Where("updated_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *ProcessingStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ dedup.Ledger = (*ProcessingStore)(nil)
