package dispatch

import (
	"context"
	"fmt"
	"strings"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhook-ingest/core"
)

// CommandHandler bridges a verified event onto an application command bus:
// the message builder shapes the event into the bus message, the commander
// executes it. Message validation runs before execution when the message
// implements the go-command contract.
type CommandHandler[M any] struct {
	eventType string
	build     func(event core.Event) (M, error)
	commander gocmd.Commander[M]
}

func NewCommandHandler[M any](
	eventType string,
	build func(event core.Event) (M, error),
	commander gocmd.Commander[M],
) (*CommandHandler[M], error) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, fmt.Errorf("dispatch: command handler event type is required")
	}
	if build == nil {
		return nil, fmt.Errorf("dispatch: command handler message builder is required")
	}
	if commander == nil {
		return nil, fmt.Errorf("dispatch: commander is required")
	}
	return &CommandHandler[M]{
		eventType: eventType,
		build:     build,
		commander: commander,
	}, nil
}

func (h *CommandHandler[M]) EventType() string {
	if h == nil {
		return ""
	}
	return h.eventType
}

func (h *CommandHandler[M]) Handle(ctx context.Context, event core.Event) (core.HandlerResult, error) {
	if h == nil || h.commander == nil {
		return core.HandlerResult{}, fmt.Errorf("dispatch: command handler is not configured")
	}
	msg, err := h.build(event)
	if err != nil {
		return core.HandlerResult{}, fmt.Errorf("dispatch: build command message: %w", err)
	}
	if err := gocmd.ValidateMessage(msg); err != nil {
		return core.HandlerResult{}, fmt.Errorf("dispatch: invalid command message: %w", err)
	}
	if err := h.commander.Execute(ctx, msg); err != nil {
		return core.HandlerResult{}, err
	}
	return core.HandlerResult{
		Status: core.HandlerStatusSucceeded,
		Metadata: map[string]any{
			"event_id":   event.ID,
			"event_type": event.Type,
		},
	}, nil
}

var _ core.EventHandler = (*CommandHandler[struct{}])(nil)
