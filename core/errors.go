package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorMalformedSignature = "WEBHOOK_MALFORMED_SIGNATURE"
	ErrorSignatureMismatch  = "WEBHOOK_SIGNATURE_MISMATCH"
	ErrorStaleTimestamp     = "WEBHOOK_STALE_TIMESTAMP"
	ErrorBadInput           = "WEBHOOK_BAD_INPUT"
	ErrorHandlerFailed      = "WEBHOOK_HANDLER_FAILED"
	ErrorConflict           = "WEBHOOK_CONFLICT"
	ErrorNotFound           = "WEBHOOK_NOT_FOUND"
	ErrorInternal           = "WEBHOOK_INTERNAL_ERROR"
)

// IsVerificationError reports whether err carries one of the
// verification-phase text codes. Verification failures map to a rejected
// receipt; everything downstream of the claim is accepted at the transport
// level regardless of processing outcome.
func IsVerificationError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	switch richErr.TextCode {
	case ErrorMalformedSignature, ErrorSignatureMismatch, ErrorStaleTimestamp:
		return true
	default:
		return false
	}
}

func webhookErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureWebhookErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature") && strings.Contains(msg, "mismatch"):
		return newWebhookError(err.Error(), goerrors.CategoryAuth, ErrorSignatureMismatch)
	case strings.Contains(msg, "timestamp") && (strings.Contains(msg, "stale") || strings.Contains(msg, "tolerance")):
		return newWebhookError(err.Error(), goerrors.CategoryAuth, ErrorStaleTimestamp)
	case strings.Contains(msg, "signature"):
		return newWebhookError(err.Error(), goerrors.CategoryBadInput, ErrorMalformedSignature)
	case strings.Contains(msg, "not found"), strings.Contains(msg, "not registered"):
		return newWebhookError(err.Error(), goerrors.CategoryNotFound, ErrorNotFound)
	case strings.Contains(msg, "conflict"), strings.Contains(msg, "already claimed"):
		return newWebhookError(err.Error(), goerrors.CategoryConflict, ErrorConflict)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newWebhookError(err.Error(), goerrors.CategoryBadInput, ErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureWebhookErrorEnvelope(mapped)
}

// MapError normalizes any error into the webhook error envelope with a
// category, HTTP code, and text code populated.
func MapError(err error) *goerrors.Error {
	return webhookErrorMapper(err)
}

func newWebhookError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureWebhookErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureWebhookErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = webhookHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultWebhookTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultWebhookTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorSignatureMismatch
	case goerrors.CategoryConflict:
		return ErrorConflict
	case goerrors.CategoryOperation:
		return ErrorHandlerFailed
	default:
		return ErrorInternal
	}
}

func webhookHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
