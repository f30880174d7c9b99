package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-webhook-ingest/core"
)

type stubHandler struct {
	eventType string
	result    core.HandlerResult
	err       error
	panics    bool
	calls     int
}

func (h *stubHandler) EventType() string { return h.eventType }

func (h *stubHandler) Handle(_ context.Context, _ core.Event) (core.HandlerResult, error) {
	h.calls++
	if h.panics {
		panic("handler exploded")
	}
	return h.result, h.err
}

func TestRouterDispatchesToRegisteredHandler(t *testing.T) {
	router := NewRouter()
	handler := &stubHandler{
		eventType: "payment.succeeded",
		result:    core.HandlerResult{Status: core.HandlerStatusSucceeded},
	}
	if err := router.Register(handler); err != nil {
		t.Fatalf("register: %v", err)
	}

	result := router.Dispatch(context.Background(), core.Event{ID: "evt_1", Type: "payment.succeeded"})
	if result.Status != core.HandlerStatusSucceeded {
		t.Fatalf("expected success, got %+v", result)
	}
	if handler.calls != 1 {
		t.Fatalf("expected exactly one handler call, got %d", handler.calls)
	}
}

func TestRouterEventTypeMatchIsCaseInsensitive(t *testing.T) {
	router := NewRouter()
	handler := &stubHandler{eventType: "Payment.Succeeded"}
	if err := router.Register(handler); err != nil {
		t.Fatalf("register: %v", err)
	}
	router.Dispatch(context.Background(), core.Event{ID: "evt_1", Type: "payment.succeeded"})
	if handler.calls != 1 {
		t.Fatalf("expected normalized match, got %d calls", handler.calls)
	}
}

func TestRouterRejectsDuplicateRegistration(t *testing.T) {
	router := NewRouter()
	if err := router.Register(&stubHandler{eventType: "payment.succeeded"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := router.Register(&stubHandler{eventType: "payment.succeeded"}); err == nil {
		t.Fatalf("expected duplicate registration conflict")
	}
}

func TestRouterUnknownTypeFallsThroughToNoop(t *testing.T) {
	router := NewRouter()
	result := router.Dispatch(context.Background(), core.Event{ID: "evt_1", Type: "inventory.restocked"})
	if result.Status != core.HandlerStatusSkipped {
		t.Fatalf("expected skipped result for unrouted event, got %+v", result)
	}
	if result.Metadata["unrouted"] != true {
		t.Fatalf("expected unrouted marker in metadata")
	}
}

func TestRouterIsolatesHandlerErrors(t *testing.T) {
	router := NewRouter()
	handler := &stubHandler{
		eventType: "payment.failed",
		err:       errors.New("downstream unavailable"),
	}
	if err := router.Register(handler); err != nil {
		t.Fatalf("register: %v", err)
	}

	result := router.Dispatch(context.Background(), core.Event{ID: "evt_1", Type: "payment.failed"})
	if result.Status != core.HandlerStatusFailed {
		t.Fatalf("expected failed result, got %+v", result)
	}
	if result.Reason != "downstream unavailable" {
		t.Fatalf("expected failure reason surfaced, got %q", result.Reason)
	}
}

func TestRouterIsolatesHandlerPanics(t *testing.T) {
	router := NewRouter()
	handler := &stubHandler{eventType: "payment.disputed", panics: true}
	if err := router.Register(handler); err != nil {
		t.Fatalf("register: %v", err)
	}

	result := router.Dispatch(context.Background(), core.Event{ID: "evt_1", Type: "payment.disputed"})
	if result.Status != core.HandlerStatusFailed {
		t.Fatalf("expected panic contained into failed result, got %+v", result)
	}
}

func TestRouterRegisterValidatesHandler(t *testing.T) {
	router := NewRouter()
	if err := router.Register(nil); err == nil {
		t.Fatalf("expected nil handler rejection")
	}
	if err := router.Register(&stubHandler{eventType: "  "}); err == nil {
		t.Fatalf("expected empty event type rejection")
	}
}
