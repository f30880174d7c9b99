// Package pipeline composes verification, deduplication, and dispatch into
// the inbound webhook processing flow, and owns the acknowledgement policy
// returned to senders.
package pipeline
