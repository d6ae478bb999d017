// Package main hosts the rorsync CLI entrypoint and command graph.
//
// Each command loads configuration once, opens the console and audit loggers,
// tags the run with a fresh run id, and hands off to internal/reconcile. The
// commands mirror the reconciliation workflow: export or match to produce an
// enriched CSV, plan and merge to collapse duplicates, and write-ids to record
// canonical identifiers on the registry records.
package main
