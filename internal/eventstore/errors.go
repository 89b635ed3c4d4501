package eventstore

import "errors"

var (
	// ErrEventNotFound means no log entry exists with the given ID.
	ErrEventNotFound = errors.New("webhook event not found")

	// ErrAlreadyProcessed means MarkProcessed was called twice for the same
	// entry. The first outcome stands; the second call is a bug upstream.
	ErrAlreadyProcessed = errors.New("webhook event already marked processed")

	// ErrEmptyPayload means an append was attempted with no payload.
	ErrEmptyPayload = errors.New("webhook event payload is empty")
)
