package reconcile

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"rorsync/internal/logging"
	"rorsync/internal/records"
	"rorsync/internal/registry"
)

// Skip reasons recorded by the identifier writer.
const (
	ReasonNoMatch        = "no_match"
	ReasonMissingUUID    = "missing_uuid"
	ReasonAlreadyPresent = "already_present"
	ReasonNoVersion      = "no_version"
)

// RecordClient fetches and updates single registry records.
type RecordClient interface {
	GetOrganization(ctx context.Context, uuid string) (*registry.Organization, error)
	UpdateIdentifiers(ctx context.Context, uuid string, version json.RawMessage, identifiers []json.RawMessage) (int, error)
}

// IdentifierOptions describes the identifier entry that gets written.
type IdentifierOptions struct {
	TypeURI           string
	TypeDiscriminator string
	Terms             map[string]string
	DryRun            bool
}

// WriteStats summarizes an identifier write-back run.
type WriteStats struct {
	Rows      int
	Unmatched int
	Skipped   int
	Planned   int
	Succeeded int
	Failed    int
}

// IdentifierWriter appends canonical identifiers to registry records.
type IdentifierWriter struct {
	client RecordClient
	opts   IdentifierOptions
	logger *slog.Logger
}

// NewIdentifierWriter constructs a writer.
func NewIdentifierWriter(client RecordClient, opts IdentifierOptions, logger *slog.Logger) *IdentifierWriter {
	return &IdentifierWriter{
		client: client,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "identifier-writer"),
	}
}

// Run visits every row with a resolved identifier. A record that already
// carries the identifier is left alone, so re-running over the same file
// sends no updates.
func (w *IdentifierWriter) Run(ctx context.Context, rows []records.EnrichedRow) (WriteStats, error) {
	var stats WriteStats
	logger := logging.WithContext(ctx, w.logger)
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Rows++
		if !row.Matched() {
			stats.Unmatched++
			continue
		}
		w.writeRow(ctx, logger, row, &stats)
	}
	return stats, nil
}

func (w *IdentifierWriter) writeRow(ctx context.Context, logger *slog.Logger, row records.EnrichedRow, stats *WriteStats) {
	uuid := strings.TrimSpace(row.UUID)
	rorID := strings.TrimSpace(row.RORID)
	logger = logger.With(
		logging.String(logging.FieldUUID, uuid),
		logging.String(logging.FieldRORID, rorID),
	)
	if uuid == "" {
		stats.Skipped++
		logging.WarnWithContext(logger, "row without uuid skipped",
			"identifier_row_invalid",
			logging.Outcome(logging.OutcomeSkipped),
			logging.Reason(ReasonMissingUUID),
		)
		return
	}

	org, err := w.client.GetOrganization(ctx, uuid)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		stats.Failed++
		logging.WarnWithContext(logger, "registry record fetch failed",
			"identifier_fetch_failed",
			logging.Outcome(logging.OutcomeFailed),
			logging.Int(logging.FieldStatusCode, registry.StatusCode(err)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "verify the uuid exists and the api key may read external organizations"),
		)
		return
	}

	if registry.HasIdentifier(org.Identifiers, rorID, w.opts.TypeURI) {
		stats.Skipped++
		logger.Info("identifier already present",
			logging.Outcome(logging.OutcomeSkipped),
			logging.Reason(ReasonAlreadyPresent),
		)
		return
	}

	if !registry.HasVersion(org.Version) {
		stats.Skipped++
		logging.WarnWithContext(logger, "registry record has no version; not updated",
			"identifier_version_missing",
			logging.Outcome(logging.OutcomeSkipped),
			logging.Reason(ReasonNoVersion),
			logging.String(logging.FieldErrorHint, "the registry did not return a version for this record"),
		)
		return
	}

	entry, err := registry.NewIdentifier(rorID, w.opts.TypeURI, w.opts.TypeDiscriminator, w.opts.Terms)
	if err != nil {
		stats.Failed++
		logging.ErrorWithContext(logger, "identifier encoding failed",
			"identifier_encode_failed",
			logging.Outcome(logging.OutcomeFailed),
			logging.Error(err),
		)
		return
	}
	identifiers := make([]json.RawMessage, 0, len(org.Identifiers)+1)
	identifiers = append(identifiers, org.Identifiers...)
	identifiers = append(identifiers, entry)

	if w.opts.DryRun {
		stats.Planned++
		logger.Info("identifier update planned (dry run)",
			logging.Outcome(logging.OutcomePlanned),
			logging.Int("identifiers", len(identifiers)),
		)
		return
	}

	status, err := w.client.UpdateIdentifiers(ctx, uuid, org.Version, identifiers)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		stats.Failed++
		logging.WarnWithContext(logger, "identifier update rejected",
			"identifier_update_failed",
			logging.Outcome(logging.OutcomeFailed),
			logging.Int(logging.FieldStatusCode, status),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "a 409 means the record changed since it was read; re-run to retry"),
			logging.String(logging.FieldImpact, "identifier not written for this record"),
		)
		return
	}
	stats.Succeeded++
	logger.Info("identifier written",
		logging.Outcome(logging.OutcomeSucceeded),
		logging.Int(logging.FieldStatusCode, status),
	)
}
