package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-webhook-ingest/core"
)

func TestBurstControllerCoalescesWithinWindow(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	controller := NewBurstController(BurstOptions{
		Mode:   BurstModeCoalesce,
		Window: 2 * time.Second,
		Now:    func() time.Time { return now },
	})

	req := core.InboundRequest{Source: "billing"}
	event := core.Event{ID: "evt_1", Type: "resource.changed"}

	decision, err := controller.Allow(context.Background(), req, event)
	if err != nil {
		t.Fatalf("first allow: %v", err)
	}
	if !decision.Allow {
		t.Fatalf("expected first delivery allowed")
	}

	now = now.Add(500 * time.Millisecond)
	decision, err = controller.Allow(context.Background(), req, core.Event{ID: "evt_2", Type: "resource.changed"})
	if err != nil {
		t.Fatalf("second allow: %v", err)
	}
	if decision.Allow {
		t.Fatalf("expected burst delivery coalesced")
	}
	if decision.Metadata["coalesced"] != true || decision.Metadata["burst_key"] != "billing:resource.changed" {
		t.Fatalf("unexpected decision metadata: %+v", decision.Metadata)
	}
}

func TestBurstControllerAllowsAfterWindowElapses(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	controller := NewBurstController(BurstOptions{
		Mode:   BurstModeCoalesce,
		Window: 2 * time.Second,
		Now:    func() time.Time { return now },
	})

	req := core.InboundRequest{Source: "billing"}
	if decision, _ := controller.Allow(context.Background(), req, core.Event{ID: "evt_1", Type: "resource.changed"}); !decision.Allow {
		t.Fatalf("expected first delivery allowed")
	}

	now = now.Add(3 * time.Second)
	decision, err := controller.Allow(context.Background(), req, core.Event{ID: "evt_2", Type: "resource.changed"})
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !decision.Allow {
		t.Fatalf("expected delivery after window allowed")
	}
}

func TestBurstControllerSeparatesKeys(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	controller := NewBurstController(BurstOptions{
		Mode:   BurstModeCoalesce,
		Window: 2 * time.Second,
		Now:    func() time.Time { return now },
	})

	req := core.InboundRequest{Source: "billing"}
	if decision, _ := controller.Allow(context.Background(), req, core.Event{ID: "evt_1", Type: "resource.changed"}); !decision.Allow {
		t.Fatalf("expected first type allowed")
	}
	decision, err := controller.Allow(context.Background(), req, core.Event{ID: "evt_2", Type: "payment.succeeded"})
	if err != nil {
		t.Fatalf("allow different type: %v", err)
	}
	if !decision.Allow {
		t.Fatalf("expected different event type to pass through")
	}
}

func TestBurstControllerNoneModePassesEverything(t *testing.T) {
	controller := NewBurstController(BurstOptions{Mode: BurstModeNone})
	req := core.InboundRequest{Source: "billing"}
	for i := 0; i < 3; i++ {
		decision, err := controller.Allow(context.Background(), req, core.Event{ID: "evt", Type: "resource.changed"})
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !decision.Allow {
			t.Fatalf("expected none mode to allow delivery %d", i+1)
		}
	}
}

func TestBurstControllerSkipsDeliveriesWithoutKey(t *testing.T) {
	controller := NewBurstController(BurstOptions{
		Mode:   BurstModeCoalesce,
		Window: time.Minute,
	})
	decision, err := controller.Allow(context.Background(), core.InboundRequest{}, core.Event{})
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !decision.Allow {
		t.Fatalf("expected keyless delivery to pass through")
	}
}
