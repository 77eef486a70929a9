package stream

import "errors"

var (
	// ErrBaseURLRequired is returned when a client is built without an endpoint.
	ErrBaseURLRequired = errors.New("base url required")

	// ErrUnexpectedStatus is returned when the endpoint answers with a non-2xx status.
	// The wrapped message carries the status code and response body.
	ErrUnexpectedStatus = errors.New("unexpected response status")
)
