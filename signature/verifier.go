package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
)

const DefaultTolerance = 300 * time.Second

// StaticSecrets adapts a fixed secret list into a core.SecretSource.
type StaticSecrets [][]byte

func (s StaticSecrets) Secrets(context.Context) ([][]byte, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("signature: no secrets configured")
	}
	out := make([][]byte, len(s))
	for i, secret := range s {
		out[i] = append([]byte(nil), secret...)
	}
	return out, nil
}

// Verifier authenticates inbound deliveries against the configured signature
// header. It is pure over its inputs plus the injected clock; it never
// mutates the request.
type Verifier struct {
	Header    string
	Source    core.SecretSource
	Tolerance time.Duration
	Now       func() time.Time
}

func NewVerifier(header string, source core.SecretSource) *Verifier {
	return &Verifier{
		Header:    header,
		Source:    source,
		Tolerance: DefaultTolerance,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Verify authenticates req and, on success, decodes the body into a
// core.Event. Every candidate secret is compared against every received v1
// digest in constant time; the loop never short-circuits on a match so the
// comparison count does not leak which secret is current.
func (v *Verifier) Verify(ctx context.Context, req core.InboundRequest) (core.Event, error) {
	if v == nil || v.Source == nil {
		return core.Event{}, internalError("signature: verifier requires a secret source")
	}
	headerName := strings.TrimSpace(v.Header)
	if headerName == "" {
		return core.Event{}, internalError("signature: signature header name is required")
	}

	headerValue := headerLookup(req.Headers, headerName)
	if headerValue == "" {
		return core.Event{}, malformed(
			fmt.Sprintf("signature: %s header is required", headerName),
			map[string]any{"source": req.Source},
		)
	}
	parsed, err := ParseHeader(headerValue)
	if err != nil {
		return core.Event{}, err
	}

	now := v.now()
	tolerance := v.tolerance()
	sent := time.Unix(parsed.Timestamp, 0).UTC()
	drift := now.Sub(sent)
	if drift < 0 {
		drift = -drift
	}
	// Boundary is inclusive: drift == tolerance still verifies.
	if drift > tolerance {
		return core.Event{}, staleTimestamp(parsed.Timestamp, tolerance, map[string]any{
			"source":   req.Source,
			"drift_ms": drift.Milliseconds(),
		})
	}

	secrets, err := v.Source.Secrets(ctx)
	if err != nil {
		return core.Event{}, internalError(fmt.Sprintf("signature: load secrets: %v", err))
	}
	if len(secrets) == 0 {
		return core.Event{}, internalError("signature: no secrets configured")
	}

	received := parsed.SchemeDigests(SchemeV1)
	matched := 0
	for _, secret := range secrets {
		expected := ComputeDigest(secret, parsed.Timestamp, req.Body)
		for _, digest := range received {
			matched += subtle.ConstantTimeCompare(digest, expected)
		}
	}
	if matched == 0 {
		return core.Event{}, mismatch(map[string]any{"source": req.Source})
	}

	return decodeEvent(req.Body, sent)
}

// ComputeDigest returns the HMAC-SHA256 digest over "{timestamp}.{body}".
func ComputeDigest(secret []byte, timestamp int64, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

type eventEnvelope struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Created int64          `json:"created"`
	Data    map[string]any `json:"data"`
}

func decodeEvent(body []byte, sent time.Time) (core.Event, error) {
	envelope := eventEnvelope{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return core.Event{}, badInput("signature: event body is not valid JSON", map[string]any{
			"decode_error": err.Error(),
		})
	}
	if strings.TrimSpace(envelope.ID) == "" {
		return core.Event{}, badInput("signature: event id is required", nil)
	}
	if strings.TrimSpace(envelope.Type) == "" {
		return core.Event{}, badInput("signature: event type is required", nil)
	}
	createdAt := sent
	if envelope.Created > 0 {
		createdAt = time.Unix(envelope.Created, 0).UTC()
	}
	return core.Event{
		ID:        strings.TrimSpace(envelope.ID),
		Type:      strings.TrimSpace(envelope.Type),
		CreatedAt: createdAt,
		Payload:   envelope.Data,
		Raw:       append([]byte(nil), body...),
	}, nil
}

func (v *Verifier) now() time.Time {
	if v != nil && v.Now != nil {
		return v.Now().UTC()
	}
	return time.Now().UTC()
}

func (v *Verifier) tolerance() time.Duration {
	if v != nil && v.Tolerance > 0 {
		return v.Tolerance
	}
	return DefaultTolerance
}

func headerLookup(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func staleTimestamp(timestamp int64, tolerance time.Duration, metadata map[string]any) error {
	err := goerrors.New(
		fmt.Sprintf("signature: timestamp %d outside tolerance window %s", timestamp, tolerance),
		goerrors.CategoryAuth,
	).
		WithCode(http.StatusUnauthorized).
		WithTextCode(core.ErrorStaleTimestamp)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func mismatch(metadata map[string]any) error {
	err := goerrors.New(
		"signature: digest mismatch for all candidate secrets",
		goerrors.CategoryAuth,
	).
		WithCode(http.StatusUnauthorized).
		WithTextCode(core.ErrorSignatureMismatch)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func badInput(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func internalError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorInternal)
}
