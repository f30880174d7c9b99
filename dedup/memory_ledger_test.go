package dedup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestLedger() (*MemoryLedger, *time.Time) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	ledger := NewMemoryLedger(24 * time.Hour)
	ledger.Now = func() time.Time { return now }
	return ledger, &now
}

func TestMemoryLedgerClaimsFreshIdentifierOnce(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	claim, claimed, err := ledger.Claim(ctx, "billing", "evt_1", time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claimed {
		t.Fatalf("expected fresh identifier to claim")
	}
	if claim.Record.Status != StatusPending || claim.Record.Attempts != 1 {
		t.Fatalf("unexpected record after claim: %+v", claim.Record)
	}

	duplicate, claimed, err := ledger.Claim(ctx, "billing", "evt_1", time.Minute)
	if err != nil {
		t.Fatalf("duplicate claim: %v", err)
	}
	if claimed {
		t.Fatalf("expected in-flight duplicate to be refused")
	}
	if duplicate.Record.Status != StatusPending {
		t.Fatalf("expected prior status pending, got %q", duplicate.Record.Status)
	}
}

func TestMemoryLedgerRefusesDoneAndFailedRecords(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	claim, _, err := ledger.Claim(ctx, "billing", "evt_done", time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := ledger.Complete(ctx, claim.ClaimID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	result, claimed, err := ledger.Claim(ctx, "billing", "evt_done", time.Minute)
	if err != nil {
		t.Fatalf("reclaim done: %v", err)
	}
	if claimed || result.Record.Status != StatusDone {
		t.Fatalf("expected done record to refuse claim, got claimed=%v status=%q", claimed, result.Record.Status)
	}

	claim, _, err = ledger.Claim(ctx, "billing", "evt_failed", time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := ledger.Fail(ctx, claim.ClaimID, errors.New("handler exploded")); err != nil {
		t.Fatalf("fail: %v", err)
	}
	result, claimed, err = ledger.Claim(ctx, "billing", "evt_failed", time.Minute)
	if err != nil {
		t.Fatalf("reclaim failed: %v", err)
	}
	if claimed || result.Record.Status != StatusFailed {
		t.Fatalf("expected failed record to refuse claim, got claimed=%v status=%q", claimed, result.Record.Status)
	}
	if result.Record.LastError != "handler exploded" {
		t.Fatalf("expected failure reason recorded, got %q", result.Record.LastError)
	}
}

func TestMemoryLedgerStalePendingRetriesExactlyOnce(t *testing.T) {
	ledger, now := newTestLedger()
	ctx := context.Background()

	_, claimed, err := ledger.Claim(ctx, "billing", "evt_stale", time.Minute)
	if err != nil || !claimed {
		t.Fatalf("initial claim: claimed=%v err=%v", claimed, err)
	}

	// Lease still live: no takeover.
	*now = now.Add(30 * time.Second)
	_, claimed, err = ledger.Claim(ctx, "billing", "evt_stale", time.Minute)
	if err != nil {
		t.Fatalf("claim during lease: %v", err)
	}
	if claimed {
		t.Fatalf("expected live lease to refuse takeover")
	}

	// Lease expired: exactly one retry is granted.
	*now = now.Add(2 * time.Minute)
	retry, claimed, err := ledger.Claim(ctx, "billing", "evt_stale", time.Minute)
	if err != nil {
		t.Fatalf("stale takeover: %v", err)
	}
	if !claimed {
		t.Fatalf("expected stale pending record to grant one retry")
	}
	if retry.Record.Attempts != 2 || !retry.Record.RetryUsed {
		t.Fatalf("unexpected retry record: %+v", retry.Record)
	}

	// Second expiry: retry budget is spent, record turns failed.
	*now = now.Add(2 * time.Minute)
	final, claimed, err := ledger.Claim(ctx, "billing", "evt_stale", time.Minute)
	if err != nil {
		t.Fatalf("post-retry claim: %v", err)
	}
	if claimed {
		t.Fatalf("expected no second retry")
	}
	if final.Record.Status != StatusFailed {
		t.Fatalf("expected exhausted record to fail, got %q", final.Record.Status)
	}
}

func TestMemoryLedgerTakeoverSupersedesStaleClaimant(t *testing.T) {
	ledger, now := newTestLedger()
	ctx := context.Background()

	first, claimed, err := ledger.Claim(ctx, "billing", "evt_slow", time.Minute)
	if err != nil || !claimed {
		t.Fatalf("initial claim: claimed=%v err=%v", claimed, err)
	}

	*now = now.Add(2 * time.Minute)
	retry, claimed, err := ledger.Claim(ctx, "billing", "evt_slow", time.Minute)
	if err != nil || !claimed {
		t.Fatalf("stale takeover: claimed=%v err=%v", claimed, err)
	}

	// The first attempt is still alive and gives up after losing its lease.
	// Only the takeover's claim id can settle the record now.
	if err := ledger.Fail(ctx, first.ClaimID, errors.New("slow attempt gave up")); err != nil {
		t.Fatalf("superseded fail: %v", err)
	}
	record, err := ledger.Get(ctx, "billing", "evt_slow")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Status != StatusPending {
		t.Fatalf("expected superseded settle to be ignored, got %q", record.Status)
	}

	if err := ledger.Complete(ctx, retry.ClaimID); err != nil {
		t.Fatalf("retry complete: %v", err)
	}
	record, err = ledger.Get(ctx, "billing", "evt_slow")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Status != StatusDone {
		t.Fatalf("expected retry outcome to win, got %q (%q)", record.Status, record.LastError)
	}
}

func TestMemoryLedgerConcurrentClaimsGrantSingleWinner(t *testing.T) {
	ledger := NewMemoryLedger(24 * time.Hour)
	ctx := context.Background()

	const deliveries = 16
	var wg sync.WaitGroup
	winners := make(chan string, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claim, claimed, err := ledger.Claim(ctx, "billing", "evt_concurrent", time.Minute)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if claimed {
				winners <- claim.ClaimID
			}
		}()
	}
	wg.Wait()
	close(winners)

	count := 0
	for range winners {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one winning claim, got %d", count)
	}
}

func TestMemoryLedgerCompleteIsIdempotentPerClaim(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	claim, _, err := ledger.Claim(ctx, "billing", "evt_settle", time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := ledger.Complete(ctx, claim.ClaimID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// Settling the same claim again is a no-op, not an error.
	if err := ledger.Complete(ctx, claim.ClaimID); err != nil {
		t.Fatalf("repeat complete: %v", err)
	}
	if err := ledger.Fail(ctx, claim.ClaimID, errors.New("late failure")); err != nil {
		t.Fatalf("late fail: %v", err)
	}
	record, err := ledger.Get(ctx, "billing", "evt_settle")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Status != StatusDone {
		t.Fatalf("expected record to stay done, got %q", record.Status)
	}
}

func TestMemoryLedgerPurgeExpiredKeepsPendingAndFresh(t *testing.T) {
	ledger, now := newTestLedger()
	ctx := context.Background()

	done, _, err := ledger.Claim(ctx, "billing", "evt_old", time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := ledger.Complete(ctx, done.ClaimID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, _, err := ledger.Claim(ctx, "billing", "evt_live", time.Hour); err != nil {
		t.Fatalf("claim live: %v", err)
	}

	*now = now.Add(25 * time.Hour)
	fresh, _, err := ledger.Claim(ctx, "billing", "evt_fresh", time.Minute)
	if err != nil {
		t.Fatalf("claim fresh: %v", err)
	}
	if err := ledger.Complete(ctx, fresh.ClaimID); err != nil {
		t.Fatalf("complete fresh: %v", err)
	}

	purged, err := ledger.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected one purged record, got %d", purged)
	}
	if _, err := ledger.Get(ctx, "billing", "evt_old"); err == nil {
		t.Fatalf("expected old done record purged")
	}
	if _, err := ledger.Get(ctx, "billing", "evt_fresh"); err != nil {
		t.Fatalf("expected fresh record retained: %v", err)
	}
}

func TestMemoryLedgerValidatesInput(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()
	if _, _, err := ledger.Claim(ctx, " ", "evt_1", time.Minute); err == nil {
		t.Fatalf("expected source validation error")
	}
	if _, _, err := ledger.Claim(ctx, "billing", "", time.Minute); err == nil {
		t.Fatalf("expected event id validation error")
	}
	if err := ledger.Complete(ctx, " "); err == nil {
		t.Fatalf("expected claim id validation error")
	}
}
