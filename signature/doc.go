// Package signature implements HMAC verification of inbound webhook
// deliveries: header parsing, constant-time digest comparison across
// rotating secrets, and replay-window timestamp checks.
package signature
