// Package sqlstore persists the webhook processing ledger with bun. The
// unique (source, event_id) index is the dedup authority; everything else in
// the package is plumbing around that constraint.
package sqlstore
