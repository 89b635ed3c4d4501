package bounce

import "errors"

// Sentinel errors for the bounce engine.
var (
	// ErrDuplicateEvent means the event ID was already counted. Callers
	// treat this as success: the counter and subscriber status are exactly
	// what a single application of the event would have produced.
	ErrDuplicateEvent = errors.New("bounce event already processed")

	// ErrMissingBounceConfig means no action rule is configured for the
	// event's bounce kind. The counter is still incremented so the event is
	// not lost, but no transition happens; the engine never substitutes a
	// lenient default for missing configuration.
	ErrMissingBounceConfig = errors.New("no bounce action configured for kind")

	// ErrSubscriberNotFound means the event could not be attached to a
	// known subscriber.
	ErrSubscriberNotFound = errors.New("subscriber not found")
)
