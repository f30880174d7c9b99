package transport

import (
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
)

func bodyReadError(source error) error {
	return goerrors.Wrap(source, goerrors.CategoryBadInput, "transport: read request body").
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput)
}

func bodyTooLarge(limit int64) error {
	return goerrors.New(
		fmt.Sprintf("transport: request body exceeds limit of %d bytes", limit),
		goerrors.CategoryBadInput,
	).
		WithCode(http.StatusRequestEntityTooLarge).
		WithTextCode(core.ErrorBadInput).
		WithMetadata(map[string]any{"body_limit_b": limit})
}
