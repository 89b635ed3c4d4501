// Package engagement keeps per-campaign view and click counters, split into
// two independent tallies: internal counts from our own tracking pixel and
// redirect links, and provider counts from webhook open/click events. The
// two are never merged; the reconciler compares them to spot drift.
package engagement
