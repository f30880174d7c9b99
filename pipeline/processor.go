package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/goliatone/go-webhook-ingest/dedup"
)

// Verifier authenticates a raw delivery and yields the verified event.
type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) (core.Event, error)
}

// Dispatcher routes a verified event to exactly one handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, event core.Event) core.HandlerResult
}

// Processor runs the full ingestion pipeline: verify, claim, dispatch,
// settle, acknowledge. The claim is recorded before handler work begins, so
// deferring the handler to a background task keeps at-most-once semantics.
type Processor struct {
	Verifier   Verifier
	Ledger     dedup.Ledger
	Dispatcher Dispatcher
	Burst      BurstController
	Observer   core.Observer
	ClaimLease time.Duration
	Now        func() time.Time
}

func NewProcessor(verifier Verifier, ledger dedup.Ledger, dispatcher Dispatcher) *Processor {
	return &Processor{
		Verifier:   verifier,
		Ledger:     ledger,
		Dispatcher: dispatcher,
		ClaimLease: dedup.DefaultLease,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Process ingests one delivery. The returned error is non-nil only for
// verification-phase rejections and infrastructure faults; handler failures
// are settled into the ledger and acknowledged as accepted.
func (p *Processor) Process(ctx context.Context, req core.InboundRequest) (core.Receipt, error) {
	startedAt := p.now()

	source := strings.TrimSpace(req.Source)
	if source == "" {
		err := core.MapError(routerSourceRequired())
		return rejectReceipt(err, nil), err
	}
	req.Source = source

	if p == nil || p.Verifier == nil || p.Ledger == nil || p.Dispatcher == nil {
		err := core.MapError(processorNotConfigured())
		return rejectReceipt(err, map[string]any{"source": source}), err
	}

	event, err := p.Verifier.Verify(ctx, req)
	if err != nil {
		mapped := core.MapError(err)
		p.Observer.Observe(ctx, startedAt, "verify", mapped, map[string]any{
			"source": source,
		})
		return rejectReceipt(mapped, map[string]any{"source": source}), mapped
	}

	fields := map[string]any{
		"source":     source,
		"event_id":   event.ID,
		"event_type": event.Type,
	}

	claim, claimed, err := p.Ledger.Claim(ctx, source, event.ID, p.claimLease())
	if err != nil {
		mapped := core.MapError(err)
		p.Observer.Observe(ctx, startedAt, "claim", mapped, fields)
		return core.Receipt{}, mapped
	}
	if !claimed {
		p.Observer.Observe(ctx, startedAt, "dedupe", nil, fields)
		return acceptDeduped(claim.Record, map[string]any{
			"source":     source,
			"event_id":   event.ID,
			"event_type": event.Type,
		}), nil
	}

	if p.Burst != nil {
		decision, burstErr := p.Burst.Allow(ctx, req, event)
		if burstErr != nil {
			mapped := core.MapError(burstErr)
			p.Observer.Observe(ctx, startedAt, "burst", mapped, fields)
			return core.Receipt{}, mapped
		}
		if !decision.Allow {
			if markErr := p.Ledger.Complete(ctx, claim.ClaimID); markErr != nil {
				mapped := core.MapError(markErr)
				return core.Receipt{}, mapped
			}
			metadata := ensureMetadata(decision.Metadata)
			metadata["source"] = source
			metadata["event_id"] = event.ID
			p.Observer.Observe(ctx, startedAt, "coalesce", nil, fields)
			return core.Receipt{
				Accepted:   true,
				StatusCode: 200,
				Metadata:   metadata,
			}, nil
		}
	}

	result := p.Dispatcher.Dispatch(ctx, event)
	if result.Failed() {
		if failErr := p.Ledger.Fail(ctx, claim.ClaimID, handlerFailure(result.Reason)); failErr != nil {
			mapped := core.MapError(failErr)
			p.Observer.Observe(ctx, startedAt, "settle", mapped, fields)
			return core.Receipt{}, mapped
		}
		p.Observer.Observe(ctx, startedAt, "process", handlerFailure(result.Reason), fields)
		return acceptProcessed(result, map[string]any{
			"source":     source,
			"event_id":   event.ID,
			"event_type": event.Type,
		}), nil
	}

	if err := p.Ledger.Complete(ctx, claim.ClaimID); err != nil {
		mapped := core.MapError(err)
		p.Observer.Observe(ctx, startedAt, "settle", mapped, fields)
		return core.Receipt{}, mapped
	}
	p.Observer.Observe(ctx, startedAt, "process", nil, fields)
	return acceptProcessed(result, map[string]any{
		"source":     source,
		"event_id":   event.ID,
		"event_type": event.Type,
	}), nil
}

func (p *Processor) claimLease() time.Duration {
	if p != nil && p.ClaimLease > 0 {
		return p.ClaimLease
	}
	return dedup.DefaultLease
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}
