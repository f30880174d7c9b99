// Package dedup tracks which event identifiers have been processed,
// providing the atomic check-and-insert that keeps side-effecting handlers
// at-most-once under redelivery.
package dedup
