// Package transport exposes the ingestion pipeline over HTTP. The handler
// reads the raw delivery bytes, resolves the source from the request path,
// and translates pipeline receipts into sender-facing status codes.
package transport
