// Package eventstore maintains the append-only webhook event log. Every
// inbound provider payload is appended before any processing happens, so
// the log is the durable record of what arrived regardless of whether
// classification or counting later succeeds. Each entry is marked processed
// exactly once, carrying the processing error if there was one.
package eventstore
