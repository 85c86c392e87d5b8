package model

import "errors"

// Failure taxonomy shared by the client, normalizer and page controller.
// Callers match with errors.Is; producers wrap with fmt.Errorf("...: %w").
var (
	// ErrNetworkFailure covers transport errors, timeouts and non-2xx responses.
	ErrNetworkFailure = errors.New("network failure")

	// ErrMalformedResponse means a body or chart payload has no recognised shape.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrQuotaExhausted is returned before any insight request when points <= 0.
	ErrQuotaExhausted = errors.New("insight points exhausted")

	// ErrUploadRejected is returned when the backend reports success=false.
	ErrUploadRejected = errors.New("upload rejected")

	// ErrInsightInFlight rejects a duplicate insight request for the same chart.
	ErrInsightInFlight = errors.New("insight already loading")

	// ErrUnknownPage is returned when a page name is not in the registry.
	ErrUnknownPage = errors.New("unknown page")

	// ErrNotCustom rejects custom date edits while a preset range is active.
	ErrNotCustom = errors.New("custom dates require the custom range")
)
