package dedup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultMemoryLedgerMaxEntries = 8192

// MemoryLedger is a single-process Ledger for tests and embedded use. The
// production deployment backs the same contract with the SQL store; nothing
// outside this package may assume a shared memory space.
type MemoryLedger struct {
	mu         sync.Mutex
	retention  time.Duration
	maxEntries int
	entries    map[string]Record
	claims     map[string]string
	active     map[string]string
	nextID     int
	Now        func() time.Time
}

func NewMemoryLedger(retention time.Duration) *MemoryLedger {
	return NewMemoryLedgerWithLimits(retention, defaultMemoryLedgerMaxEntries)
}

func NewMemoryLedgerWithLimits(retention time.Duration, maxEntries int) *MemoryLedger {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if maxEntries <= 0 {
		maxEntries = defaultMemoryLedgerMaxEntries
	}
	return &MemoryLedger{
		retention:  retention,
		maxEntries: maxEntries,
		entries:    map[string]Record{},
		claims:     map[string]string{},
		active:     map[string]string{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *MemoryLedger) Claim(
	_ context.Context,
	source string,
	eventID string,
	lease time.Duration,
) (Claim, bool, error) {
	if l == nil {
		return Claim{}, false, ledgerInternal("dedup: ledger is not configured", nil)
	}
	source = strings.TrimSpace(source)
	eventID = strings.TrimSpace(eventID)
	if source == "" || eventID == "" {
		return Claim{}, false, ledgerBadInput("dedup: source and event id are required", nil)
	}
	if lease <= 0 {
		lease = DefaultLease
	}
	now := l.now()
	key := recordKey(source, eventID)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.enforceCapacityLocked(now)

	record, exists := l.entries[key]
	if !exists {
		claimID := l.nextClaimID()
		record = Record{
			ID:            claimID,
			Source:        source,
			EventID:       eventID,
			Status:        StatusPending,
			Attempts:      1,
			FirstSeenAt:   now,
			LastAttemptAt: now,
			LeaseExpires:  now.Add(lease),
			UpdatedAt:     now,
		}
		l.entries[key] = record
		l.claims[claimID] = key
		l.active[key] = claimID
		return Claim{ClaimID: claimID, Record: record}, true, nil
	}

	switch record.Status {
	case StatusDone, StatusFailed:
		return Claim{Record: record}, false, nil
	case StatusPending:
		if now.Before(record.LeaseExpires) {
			return Claim{Record: record}, false, nil
		}
		if record.RetryUsed {
			// Second lease expiry: the single self-healing retry is spent.
			record.Status = StatusFailed
			record.LastError = "dedup: stale processing retry exhausted"
			record.UpdatedAt = now
			l.entries[key] = record
			l.releaseClaimLocked(key)
			return Claim{Record: record}, false, nil
		}
		// The takeover supersedes the stale claimant: unmap its claim id so a
		// late Complete/Fail from the first attempt cannot settle this record.
		l.releaseClaimLocked(key)
		claimID := l.nextClaimID()
		record.Status = StatusPending
		record.RetryUsed = true
		record.Attempts++
		record.LastAttemptAt = now
		record.LeaseExpires = now.Add(lease)
		record.UpdatedAt = now
		l.entries[key] = record
		l.claims[claimID] = key
		l.active[key] = claimID
		return Claim{ClaimID: claimID, Record: record}, true, nil
	default:
		return Claim{}, false, ledgerInternal(
			fmt.Sprintf("dedup: record %q has unknown status %q", key, record.Status), nil,
		)
	}
}

func (l *MemoryLedger) Complete(_ context.Context, claimID string) error {
	return l.settle(claimID, StatusDone, "")
}

func (l *MemoryLedger) Fail(_ context.Context, claimID string, cause error) error {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	return l.settle(claimID, StatusFailed, reason)
}

func (l *MemoryLedger) settle(claimID string, status string, reason string) error {
	if l == nil {
		return ledgerInternal("dedup: ledger is not configured", nil)
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return ledgerBadInput("dedup: claim id is required", nil)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	key, ok := l.claims[claimID]
	if !ok {
		return nil
	}
	delete(l.claims, claimID)
	if l.active[key] == claimID {
		delete(l.active, key)
	}
	record, exists := l.entries[key]
	if !exists || record.Status != StatusPending {
		return nil
	}
	now := l.now()
	record.Status = status
	record.LastError = reason
	record.LeaseExpires = time.Time{}
	record.UpdatedAt = now
	l.entries[key] = record
	return nil
}

func (l *MemoryLedger) Get(_ context.Context, source string, eventID string) (Record, error) {
	if l == nil {
		return Record{}, ledgerInternal("dedup: ledger is not configured", nil)
	}
	key := recordKey(strings.TrimSpace(source), strings.TrimSpace(eventID))
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.entries[key]
	if !ok {
		return Record{}, ledgerNotFound(
			fmt.Sprintf("dedup: no record for source %q event %q", source, eventID),
			map[string]any{"source": source, "event_id": eventID},
		)
	}
	return record, nil
}

func (l *MemoryLedger) PurgeExpired(_ context.Context) (int, error) {
	if l == nil {
		return 0, ledgerInternal("dedup: ledger is not configured", nil)
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	purged := 0
	for key, record := range l.entries {
		if record.Status == StatusPending {
			continue
		}
		if now.Sub(record.UpdatedAt) >= l.retention {
			delete(l.entries, key)
			purged++
		}
	}
	return purged, nil
}

func (l *MemoryLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *MemoryLedger) releaseClaimLocked(key string) {
	claimID, ok := l.active[key]
	if !ok {
		return
	}
	delete(l.claims, claimID)
	delete(l.active, key)
}

func (l *MemoryLedger) nextClaimID() string {
	l.nextID++
	return fmt.Sprintf("claim_%d", l.nextID)
}

func (l *MemoryLedger) enforceCapacityLocked(now time.Time) {
	if len(l.entries) < l.maxEntries {
		return
	}
	// Evict the oldest terminal records first; pending records are live
	// claims and never evicted under pressure.
	for len(l.entries) >= l.maxEntries {
		oldestKey := ""
		var oldestAt time.Time
		for key, record := range l.entries {
			if record.Status == StatusPending {
				continue
			}
			if oldestKey == "" || record.UpdatedAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = record.UpdatedAt
			}
		}
		if oldestKey == "" {
			return
		}
		delete(l.entries, oldestKey)
	}
	_ = now
}

func recordKey(source string, eventID string) string {
	return source + ":" + eventID
}

var _ Ledger = (*MemoryLedger)(nil)
