package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/goliatone/go-webhook-ingest/dedup"
	"github.com/goliatone/go-webhook-ingest/dispatch"
	"github.com/goliatone/go-webhook-ingest/pipeline"
	"github.com/goliatone/go-webhook-ingest/signature"
)

var handlerNow = time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)

type recordedEvents struct {
	events []core.Event
}

func (r *recordedEvents) EventType() string { return "payment.succeeded" }

func (r *recordedEvents) Handle(_ context.Context, event core.Event) (core.HandlerResult, error) {
	r.events = append(r.events, event)
	return core.HandlerResult{Status: core.HandlerStatusSucceeded}, nil
}

func newTestHandler(t *testing.T, secret []byte, handlers ...core.EventHandler) *WebhookHandler {
	t.Helper()
	verifier := signature.NewVerifier("X-Webhook-Signature", signature.StaticSecrets{secret})
	verifier.Now = func() time.Time { return handlerNow }

	ledger := dedup.NewMemoryLedger(24 * time.Hour)
	ledger.Now = func() time.Time { return handlerNow }

	router := dispatch.NewRouter()
	for _, handler := range handlers {
		if err := router.Register(handler); err != nil {
			t.Fatalf("register handler: %v", err)
		}
	}

	processor := pipeline.NewProcessor(verifier, ledger, router)
	processor.Now = func() time.Time { return handlerNow }
	return NewWebhookHandler(processor)
}

func signedRequest(t *testing.T, secret []byte, body []byte) *http.Request {
	t.Helper()
	header, err := signature.Sign(handlerNow.Unix(), body, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", header)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeEnvelope(t *testing.T, res *httptest.ResponseRecorder) receiptEnvelope {
	t.Helper()
	envelope := receiptEnvelope{}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response envelope: %v", err)
	}
	return envelope
}

func TestWebhookHandlerAcceptsSignedDelivery(t *testing.T) {
	secret := []byte("whsec_test")
	handler := &recordedEvents{}
	webhook := newTestHandler(t, secret, handler)

	body := []byte(`{"id":"evt_1","type":"payment.succeeded","data":{"amount":125}}`)
	res := httptest.NewRecorder()
	webhook.ServeHTTP(res, signedRequest(t, secret, body))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	envelope := decodeEnvelope(t, res)
	if !envelope.Accepted {
		t.Fatalf("expected accepted envelope, got %+v", envelope)
	}
	if len(handler.events) != 1 {
		t.Fatalf("expected one handled event, got %d", len(handler.events))
	}
	if handler.events[0].ID != "evt_1" {
		t.Fatalf("unexpected event id %q", handler.events[0].ID)
	}
	if handler.events[0].Payload["amount"] != float64(125) {
		t.Fatalf("unexpected payload: %+v", handler.events[0].Payload)
	}
}

func TestWebhookHandlerRejectsBadSignatureWithoutDetail(t *testing.T) {
	webhook := newTestHandler(t, []byte("whsec_test"), &recordedEvents{})

	body := []byte(`{"id":"evt_2","type":"payment.succeeded"}`)
	res := httptest.NewRecorder()
	webhook.ServeHTTP(res, signedRequest(t, []byte("whsec_wrong"), body))

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	envelope := decodeEnvelope(t, res)
	if envelope.Accepted {
		t.Fatalf("expected rejected envelope")
	}
	if envelope.Code != core.ErrorSignatureMismatch {
		t.Fatalf("expected mismatch code, got %q", envelope.Code)
	}
	if strings.Contains(envelope.Error, "digest") || strings.Contains(envelope.Error, "secret") {
		t.Fatalf("rejection message leaks verification detail: %q", envelope.Error)
	}
}

func TestWebhookHandlerRedeliveryStaysAccepted(t *testing.T) {
	secret := []byte("whsec_test")
	handler := &recordedEvents{}
	webhook := newTestHandler(t, secret, handler)

	body := []byte(`{"id":"evt_3","type":"payment.succeeded"}`)
	for i := 0; i < 3; i++ {
		res := httptest.NewRecorder()
		webhook.ServeHTTP(res, signedRequest(t, secret, body))
		if res.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i+1, res.Code)
		}
	}
	if len(handler.events) != 1 {
		t.Fatalf("expected handler to run once, got %d", len(handler.events))
	}
}

func TestWebhookHandlerRejectsNonPost(t *testing.T) {
	webhook := newTestHandler(t, []byte("whsec_test"))
	res := httptest.NewRecorder()
	webhook.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/webhooks/billing", nil))
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
	if allow := res.Header().Get("Allow"); allow != http.MethodPost {
		t.Fatalf("expected Allow: POST, got %q", allow)
	}
}

func TestWebhookHandlerEnforcesBodyLimit(t *testing.T) {
	secret := []byte("whsec_test")
	webhook := newTestHandler(t, secret)
	webhook.MaxBodyBytes = 64

	body := []byte(`{"id":"evt_4","type":"payment.succeeded","data":{"pad":"` +
		strings.Repeat("x", 256) + `"}}`)
	res := httptest.NewRecorder()
	webhook.ServeHTTP(res, signedRequest(t, secret, body))
	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestWebhookHandlerRequiresSourceSegment(t *testing.T) {
	secret := []byte("whsec_test")
	webhook := newTestHandler(t, secret)

	body := []byte(`{"id":"evt_5","type":"payment.succeeded"}`)
	header, err := signature.Sign(handlerNow.Unix(), body, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", header)

	res := httptest.NewRecorder()
	webhook.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing source, got %d", res.Code)
	}
}

func TestPathSourceResolver(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/webhooks/billing", "billing"},
		{"/webhooks/billing/", "billing"},
		{"/billing", "billing"},
		{"/", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "http://example.test"+tt.path, nil)
		if got := PathSourceResolver(req); got != tt.expected {
			t.Errorf("path %q: expected %q, got %q", tt.path, tt.expected, got)
		}
	}
}
