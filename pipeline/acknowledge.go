package pipeline

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/goliatone/go-webhook-ingest/dedup"
)

// Receipt policy: rejection is reserved for payloads we could not
// authenticate. Once an event is verified, the receipt is an acceptance no
// matter how processing went. Handler failures stay visible through the
// processing record and logs, never through sender-facing retries.

func rejectReceipt(err error, metadata map[string]any) core.Receipt {
	statusCode := http.StatusBadRequest
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code != 0 {
		statusCode = richErr.Code
	}
	merged := ensureMetadata(metadata)
	merged["rejected"] = true
	return core.Receipt{
		Accepted:   false,
		StatusCode: statusCode,
		Metadata:   merged,
	}
}

func acceptDeduped(record dedup.Record, metadata map[string]any) core.Receipt {
	merged := ensureMetadata(metadata)
	merged["deduped"] = true
	merged["prior_status"] = record.Status
	return core.Receipt{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata:   merged,
	}
}

func acceptProcessed(result core.HandlerResult, metadata map[string]any) core.Receipt {
	merged := ensureMetadata(metadata)
	merged["handler_status"] = string(result.Status)
	if result.Failed() && result.Reason != "" {
		merged["handler_reason"] = result.Reason
	}
	return core.Receipt{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata:   merged,
	}
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return metadata
}
