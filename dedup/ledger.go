package dedup

import (
	"context"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
)

const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

const (
	DefaultLease     = 60 * time.Second
	DefaultRetention = 30 * 24 * time.Hour
)

// Record is the persisted processing state for one event identifier. It is
// the single source of truth for at-most-once guarantees: created on first
// sighting, mutated on completion, purged only after the retention window.
type Record struct {
	ID            string
	Source        string
	EventID       string
	Status        string
	Attempts      int
	RetryUsed     bool
	LastError     string
	FirstSeenAt   time.Time
	LastAttemptAt time.Time
	LeaseExpires  time.Time
	UpdatedAt     time.Time
}

// Claim is a granted right to process one event delivery. The claim id ties
// the later Complete/Fail call to the exact attempt that won the claim.
type Claim struct {
	ClaimID string
	Record  Record
}

// Ledger provides the atomic check-and-insert that guards side effects.
//
// Claim semantics: a fresh identifier inserts a pending record and grants the
// claim; done and failed records never grant again; a pending record whose
// lease expired (crashed or abandoned attempt) grants exactly one retry, then
// transitions to failed when it expires a second time.
type Ledger interface {
	Claim(ctx context.Context, source string, eventID string, lease time.Duration) (Claim, bool, error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error) error
	Get(ctx context.Context, source string, eventID string) (Record, error)
	PurgeExpired(ctx context.Context) (int, error)
}

func ledgerBadInput(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func ledgerInternal(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorInternal)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func ledgerNotFound(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(core.ErrorNotFound)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}
