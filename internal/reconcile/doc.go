// Package reconcile holds the four workflows that reconcile registry
// organizations with canonical identifiers.
//
// Enricher drives a Source (the paged registry listing or a file) through the
// matching core into a row sink. PlanMerges and Merger turn enriched rows
// into merge requests, one per canonical identifier that has exactly one
// approved record. IdentifierWriter appends the identifier to each matched
// record that does not already carry it.
//
// All workflows are sequential. Per-record failures are logged and counted;
// only cancellation and start-up failures end a run early.
package reconcile
