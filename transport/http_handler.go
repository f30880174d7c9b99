package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhook-ingest/core"
)

const defaultMaxBodyBytes int64 = 1 << 20 // 1 MiB

// IngestProcessor is the pipeline surface the HTTP handler drives.
type IngestProcessor interface {
	Process(ctx context.Context, req core.InboundRequest) (core.Receipt, error)
}

// SourceResolver extracts the logical source identifier from a request. The
// default takes the last non-empty path segment, so mounting the handler at
// /webhooks/ yields /webhooks/{source}.
type SourceResolver func(r *http.Request) string

// WebhookHandler exposes the ingestion pipeline over HTTP. It reads the raw
// body before any parsing so the signature is computed over the exact bytes
// the sender transmitted.
type WebhookHandler struct {
	Processor     IngestProcessor
	Logger        glog.Logger
	ResolveSource SourceResolver
	MaxBodyBytes  int64
}

func NewWebhookHandler(processor IngestProcessor) *WebhookHandler {
	return &WebhookHandler{
		Processor:     processor,
		ResolveSource: PathSourceResolver,
		MaxBodyBytes:  defaultMaxBodyBytes,
	}
}

type receiptEnvelope struct {
	Accepted bool           `json:"accepted"`
	Error    string         `json:"error,omitempty"`
	Code     string         `json:"code,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Processor == nil {
		writeEnvelope(w, http.StatusInternalServerError, receiptEnvelope{
			Error: "webhook processor is not configured",
			Code:  core.ErrorInternal,
		})
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeEnvelope(w, http.StatusMethodNotAllowed, receiptEnvelope{
			Error: "only POST deliveries are accepted",
			Code:  core.ErrorBadInput,
		})
		return
	}

	body, err := readBody(r, h.maxBodyBytes())
	if err != nil {
		h.logError(r.Context(), "read webhook body", err)
		writeEnvelope(w, http.StatusRequestEntityTooLarge, receiptEnvelope{
			Error: err.Error(),
			Code:  core.ErrorBadInput,
		})
		return
	}

	source := ""
	if h.ResolveSource != nil {
		source = h.ResolveSource(r)
	}

	startedAt := time.Now().UTC()
	receipt, err := h.Processor.Process(r.Context(), core.InboundRequest{
		Source:  source,
		Headers: flattenHeaders(r.Header),
		Body:    body,
		Metadata: map[string]any{
			"remote_addr": r.RemoteAddr,
			"path":        r.URL.Path,
		},
	})
	if err != nil {
		h.logError(r.Context(), "process webhook delivery", err)
		writeEnvelope(w, receiptStatus(receipt, err), receiptEnvelope{
			Accepted: false,
			Error:    publicErrorMessage(err),
			Code:     errorTextCode(err),
			Metadata: receipt.Metadata,
		})
		return
	}

	h.logAccepted(r.Context(), source, receipt, time.Since(startedAt))
	writeEnvelope(w, receiptStatus(receipt, nil), receiptEnvelope{
		Accepted: receipt.Accepted,
		Metadata: receipt.Metadata,
	})
}

// PathSourceResolver returns the last non-empty segment of the request path.
func PathSourceResolver(r *http.Request) string {
	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segment := strings.TrimSpace(segments[i]); segment != "" {
			return segment
		}
	}
	return ""
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, bodyReadError(err)
	}
	if int64(len(body)) > limit {
		return nil, bodyTooLarge(limit)
	}
	return body, nil
}

func receiptStatus(receipt core.Receipt, err error) int {
	if receipt.StatusCode > 0 {
		return receipt.StatusCode
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code != 0 {
		return richErr.Code
	}
	if err != nil {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

// publicErrorMessage keeps verification detail out of responses: the sender
// learns the delivery was rejected, not which check failed first.
func publicErrorMessage(err error) string {
	if core.IsVerificationError(err) {
		return "webhook delivery could not be verified"
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryBadInput, goerrors.CategoryValidation:
			return richErr.Message
		}
	}
	return "webhook delivery could not be processed"
}

func errorTextCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" {
		return richErr.TextCode
	}
	return core.ErrorInternal
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func writeEnvelope(w http.ResponseWriter, statusCode int, envelope receiptEnvelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(envelope)
}

func (h *WebhookHandler) maxBodyBytes() int64 {
	if h != nil && h.MaxBodyBytes > 0 {
		return h.MaxBodyBytes
	}
	return defaultMaxBodyBytes
}

func (h *WebhookHandler) logError(ctx context.Context, operation string, err error) {
	if h == nil || h.Logger == nil {
		return
	}
	h.Logger.WithContext(ctx).Error(operation, "error", err)
}

func (h *WebhookHandler) logAccepted(
	ctx context.Context,
	source string,
	receipt core.Receipt,
	elapsed time.Duration,
) {
	if h == nil || h.Logger == nil {
		return
	}
	h.Logger.WithContext(ctx).Info("webhook delivery acknowledged",
		"source", source,
		"accepted", receipt.Accepted,
		"status_code", receipt.StatusCode,
		"duration_ms", elapsed.Milliseconds(),
	)
}

var _ http.Handler = (*WebhookHandler)(nil)
