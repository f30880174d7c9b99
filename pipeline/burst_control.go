package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-webhook-ingest/core"
)

type BurstMode string

const (
	BurstModeNone     BurstMode = "none"
	BurstModeCoalesce BurstMode = "coalesce"
)

type BurstDecision struct {
	Allow    bool
	Metadata map[string]any
}

// BurstController optionally collapses rapid-fire deliveries that share a
// burst key. A suppressed delivery is still claimed and completed, so the
// sender sees an acceptance and the ledger stays consistent.
type BurstController interface {
	Allow(ctx context.Context, req core.InboundRequest, event core.Event) (BurstDecision, error)
}

type BurstKeyExtractor func(req core.InboundRequest, event core.Event) (string, bool)

type BurstOptions struct {
	Mode       BurstMode
	Window     time.Duration
	MaxEntries int
	ExtractKey BurstKeyExtractor
	Now        func() time.Time
}

type CoalescingBurstController struct {
	mode       BurstMode
	window     time.Duration
	maxEntries int
	extractKey BurstKeyExtractor
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

func NewBurstController(opts BurstOptions) *CoalescingBurstController {
	mode := opts.Mode
	if mode != BurstModeCoalesce {
		mode = BurstModeNone
	}
	window := opts.Window
	if window <= 0 {
		window = 2 * time.Second
	}
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	extractKey := opts.ExtractKey
	if extractKey == nil {
		extractKey = DefaultBurstKeyExtractor
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &CoalescingBurstController{
		mode:       mode,
		window:     window,
		maxEntries: maxEntries,
		extractKey: extractKey,
		now:        now,
		entries:    map[string]time.Time{},
	}
}

func (c *CoalescingBurstController) Allow(
	_ context.Context,
	req core.InboundRequest,
	event core.Event,
) (BurstDecision, error) {
	if c == nil || c.mode == BurstModeNone {
		return BurstDecision{Allow: true}, nil
	}
	key, ok := c.extractKey(req, event)
	if !ok || strings.TrimSpace(key) == "" {
		return BurstDecision{Allow: true}, nil
	}
	key = strings.TrimSpace(key)

	now := c.now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()

	lastSeen, exists := c.entries[key]
	c.entries[key] = now
	c.cleanup(now)
	if !exists || now.Sub(lastSeen) >= c.window {
		return BurstDecision{Allow: true}, nil
	}

	return BurstDecision{
		Allow: false,
		Metadata: map[string]any{
			"coalesced":       true,
			"burst_key":       key,
			"burst_window_ms": c.window.Milliseconds(),
		},
	}, nil
}

func (c *CoalescingBurstController) cleanup(now time.Time) {
	if len(c.entries) <= c.maxEntries {
		for key, seenAt := range c.entries {
			if now.Sub(seenAt) > c.window*4 {
				delete(c.entries, key)
			}
		}
		return
	}
	for key, seenAt := range c.entries {
		if now.Sub(seenAt) > c.window {
			delete(c.entries, key)
		}
		if len(c.entries) <= c.maxEntries {
			break
		}
	}
}

// DefaultBurstKeyExtractor groups deliveries by source plus event type, so a
// flood of identical notifications (resource-changed pings) coalesces while
// distinct event types pass through.
func DefaultBurstKeyExtractor(req core.InboundRequest, event core.Event) (string, bool) {
	source := strings.TrimSpace(strings.ToLower(req.Source))
	eventType := strings.TrimSpace(strings.ToLower(event.Type))
	if source == "" || eventType == "" {
		return "", false
	}
	return source + ":" + eventType, true
}

var _ BurstController = (*CoalescingBurstController)(nil)
