// Package core defines the shared domain types, configuration surface, and
// error envelope for the webhook ingestion pipeline. Leaf packages
// (signature, dedup, dispatch) depend only on core; the pipeline package
// composes them.
package core
