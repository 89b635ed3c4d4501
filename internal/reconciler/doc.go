// Package reconciler audits the pipeline's counters without changing them.
// It compares internally-observed engagement against provider-reported
// engagement per campaign, and checks for subscribers whose bounce counters
// earned a blocklist that never happened. Every finding is advisory; the
// audit holds no locks and runs concurrently with live ingestion, so small
// transient drift on a busy campaign is expected and the report says so.
package reconciler
