package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
)

// Router maps an event type to exactly one handler. Unregistered types fall
// through to the fallback, which records the event without side effects:
// unknown event types must never turn into hard failures.
type Router struct {
	Fallback core.EventHandler

	mu       sync.RWMutex
	handlers map[string]core.EventHandler
}

func NewRouter() *Router {
	return &Router{
		Fallback: NoopHandler{},
		handlers: map[string]core.EventHandler{},
	}
}

func (r *Router) Register(handler core.EventHandler) error {
	if r == nil {
		return routerInternal("dispatch: router is nil")
	}
	if handler == nil {
		return routerBadInput("dispatch: handler is nil", nil)
	}
	eventType := normalizeEventType(handler.EventType())
	if eventType == "" {
		return routerBadInput("dispatch: handler event type is required", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = map[string]core.EventHandler{}
	}
	if _, exists := r.handlers[eventType]; exists {
		err := goerrors.New(
			fmt.Sprintf("dispatch: handler already registered for event type %q", eventType),
			goerrors.CategoryConflict,
		).
			WithCode(http.StatusConflict).
			WithTextCode(core.ErrorConflict)
		err.WithMetadata(map[string]any{"event_type": eventType})
		return err
	}
	r.handlers[eventType] = handler
	return nil
}

// Dispatch routes event to its handler. Handler errors and panics are
// contained into a failed HandlerResult; nothing escapes the dispatch
// boundary, so the caller's ledger transition always runs.
func (r *Router) Dispatch(ctx context.Context, event core.Event) core.HandlerResult {
	if r == nil {
		return core.HandlerResult{
			Status: core.HandlerStatusFailed,
			Reason: "dispatch: router is nil",
		}
	}
	handler := r.handlerFor(event.Type)
	if handler == nil {
		handler = r.fallback()
	}
	return invoke(ctx, handler, event)
}

func (r *Router) handlerFor(eventType string) core.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[normalizeEventType(eventType)]
}

func (r *Router) fallback() core.EventHandler {
	if r.Fallback != nil {
		return r.Fallback
	}
	return NoopHandler{}
}

func invoke(ctx context.Context, handler core.EventHandler, event core.Event) (result core.HandlerResult) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = core.HandlerResult{
				Status: core.HandlerStatusFailed,
				Reason: fmt.Sprintf("dispatch: handler panicked: %v", recovered),
				Metadata: map[string]any{
					"event_id":   event.ID,
					"event_type": event.Type,
				},
			}
		}
	}()

	handled, err := handler.Handle(ctx, event)
	if err != nil {
		return core.HandlerResult{
			Status: core.HandlerStatusFailed,
			Reason: err.Error(),
			Metadata: map[string]any{
				"event_id":   event.ID,
				"event_type": event.Type,
			},
		}
	}
	if handled.Status == "" {
		handled.Status = core.HandlerStatusSucceeded
	}
	return handled
}

// NoopHandler accepts any event type and does nothing. The optional logger
// keeps a trace of unroutable events.
type NoopHandler struct {
	Logger core.Logger
}

func (NoopHandler) EventType() string { return "*" }

func (h NoopHandler) Handle(ctx context.Context, event core.Event) (core.HandlerResult, error) {
	if h.Logger != nil {
		logger := h.Logger
		if ctx != nil {
			logger = logger.WithContext(ctx)
		}
		logger.Info("dispatch: no handler registered, event recorded",
			"event_id", event.ID,
			"event_type", event.Type,
		)
	}
	return core.HandlerResult{
		Status: core.HandlerStatusSkipped,
		Metadata: map[string]any{
			"event_id":   event.ID,
			"event_type": event.Type,
			"unrouted":   true,
		},
	}, nil
}

func normalizeEventType(eventType string) string {
	return strings.TrimSpace(strings.ToLower(eventType))
}

func routerBadInput(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func routerInternal(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorInternal)
}

var _ core.EventHandler = NoopHandler{}
