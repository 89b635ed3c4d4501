// Package bounce implements the bounce-driven subscriber state machine.
//
// The engine keeps per-subscriber, per-kind bounce counters and applies the
// configured threshold rules: when a kind's counter reaches its threshold the
// subscriber is blocklisted or deleted. The only transitions this engine
// performs are * -> blocklisted and * -> deleted; re-enabling a subscriber is
// an administrative action outside this service.
//
// The service layer depends on the Repository and DedupStore interfaces and
// never imports net/http or database/sql directly.
package bounce
