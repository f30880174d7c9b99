package pipeline

import (
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-ingest/core"
)

func routerSourceRequired() error {
	return goerrors.New("pipeline: source is required", goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput)
}

func processorNotConfigured() error {
	return goerrors.New(
		"pipeline: processor requires verifier, ledger, and dispatcher",
		goerrors.CategoryInternal,
	).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorInternal)
}

func handlerFailure(reason string) error {
	if reason == "" {
		reason = "handler failed"
	}
	return goerrors.New(
		fmt.Sprintf("pipeline: %s", reason),
		goerrors.CategoryOperation,
	).
		WithCode(http.StatusBadGateway).
		WithTextCode(core.ErrorHandlerFailed)
}
