package dedup

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Maintainer runs the periodic ledger upkeep a deployment schedules through
// its job queue: purging settled records past retention.
type Maintainer struct {
	Ledger Ledger
	Logger glog.Logger
}

func NewMaintainer(ledger Ledger, logger glog.Logger) *Maintainer {
	return &Maintainer{
		Ledger: ledger,
		Logger: glog.Ensure(logger),
	}
}

// RunPurge removes settled records older than the ledger's retention window
// and reports how many were dropped.
func (m *Maintainer) RunPurge(ctx context.Context) (int, error) {
	if m == nil || m.Ledger == nil {
		return 0, ledgerInternal("dedup: maintainer requires a ledger", nil)
	}
	startedAt := time.Now().UTC()
	purged, err := m.Ledger.PurgeExpired(ctx)
	if err != nil {
		m.logger().WithContext(ctx).Error("ledger purge failed", "error", err)
		return 0, err
	}
	m.logger().WithContext(ctx).Info("ledger purge finished",
		"purged", purged,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)
	return purged, nil
}

func (m *Maintainer) logger() glog.Logger {
	if m != nil && m.Logger != nil {
		return m.Logger
	}
	return glog.Nop()
}
