// Package logging assembles structured slog loggers and formatting helpers used
// across rorsync commands.
//
// It owns the console and JSON handlers, tees every record into the
// append-only audit log, and exposes context helpers that tag each line with
// the run identifier of the invocation. Skips, successes, and failures carry an
// outcome field so an operator can tell "skipped by policy" apart from "failed
// due to error" when reading the audit log after the fact.
//
// Prefer these constructors over hand-rolled slog setup to ensure new
// components emit data with the same shape and routing guarantees as the rest
// of the system.
package logging
