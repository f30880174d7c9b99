// Package dispatch routes verified events to type-keyed handlers with
// failure isolation: one handler's error or panic never blocks another
// event, and unknown event types are recorded, not rejected.
package dispatch
