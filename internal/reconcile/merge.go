package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"rorsync/internal/logging"
	"rorsync/internal/records"
	"rorsync/internal/registry"
)

// Skip reasons recorded for merge groups that are not sent.
const (
	ReasonNoApproved       = "no_approved"
	ReasonMultipleApproved = "multiple_approved"
	ReasonNothingToMerge   = "nothing_to_merge"
)

// MergeDecision is the plan for one group of rows sharing a canonical id.
type MergeDecision struct {
	RORID         string
	UUIDs         []string
	ApprovedCount int
	// Reason is empty for planned groups.
	Reason string
}

// Planned reports whether the group will be sent as a merge request.
func (d MergeDecision) Planned() bool { return d.Reason == "" }

// Target returns the approved record that the others merge into.
func (d MergeDecision) Target() string {
	if !d.Planned() || len(d.UUIDs) == 0 {
		return ""
	}
	return d.UUIDs[0]
}

// PlanMerges groups rows by canonical id and decides each group. Rows with a
// sentinel or empty id, or without a uuid, take no part. A group is planned
// only when exactly one of its records is approved and it has something to
// merge; the approved uuid leads and the rest follow in ascending order.
// Decisions are ordered by canonical id.
//
// Rows repeating a uuid within a group collapse into one record before
// approvals are counted, so ApprovedCount counts distinct approved records,
// not rows. Two Approved rows for the same uuid count once and the group can
// still be planned; counting rows would skip it as multiple_approved.
func PlanMerges(rows []records.EnrichedRow) []MergeDecision {
	type member struct {
		uuid     string
		approved bool
	}
	groups := make(map[string][]member)
	seen := make(map[string]map[string]int)
	for _, row := range rows {
		id := strings.TrimSpace(row.RORID)
		uuid := strings.TrimSpace(row.UUID)
		if !records.IsResolvedID(id) || uuid == "" {
			continue
		}
		if seen[id] == nil {
			seen[id] = make(map[string]int)
		}
		if idx, dup := seen[id][uuid]; dup {
			groups[id][idx].approved = groups[id][idx].approved || row.Approved()
			continue
		}
		seen[id][uuid] = len(groups[id])
		groups[id] = append(groups[id], member{uuid: uuid, approved: row.Approved()})
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	decisions := make([]MergeDecision, 0, len(ids))
	for _, id := range ids {
		members := groups[id]
		sort.Slice(members, func(i, j int) bool {
			if members[i].approved != members[j].approved {
				return members[i].approved
			}
			return members[i].uuid < members[j].uuid
		})
		decision := MergeDecision{RORID: id, UUIDs: make([]string, 0, len(members))}
		for _, m := range members {
			decision.UUIDs = append(decision.UUIDs, m.uuid)
			if m.approved {
				decision.ApprovedCount++
			}
		}
		switch {
		case decision.ApprovedCount == 0:
			decision.Reason = ReasonNoApproved
		case decision.ApprovedCount > 1:
			decision.Reason = ReasonMultipleApproved
		case len(decision.UUIDs) < 2:
			decision.Reason = ReasonNothingToMerge
		}
		decisions = append(decisions, decision)
	}
	return decisions
}

// MergePlan returns the planned groups as canonical id to ordered uuids.
func MergePlan(decisions []MergeDecision) map[string][]string {
	plan := make(map[string][]string)
	for _, d := range decisions {
		if d.Planned() {
			plan[d.RORID] = d.UUIDs
		}
	}
	return plan
}

// MergeClient sends merge requests.
type MergeClient interface {
	Merge(ctx context.Context, uuids []string) (int, error)
}

// MergeStats summarizes a merge run.
type MergeStats struct {
	Groups    int
	Planned   int
	Skipped   int
	Succeeded int
	Failed    int
}

// Merger executes merge decisions, writing one audit line per group.
type Merger struct {
	client MergeClient
	dryRun bool
	logger *slog.Logger
}

// NewMerger constructs a merger. With dryRun set no request is sent.
func NewMerger(client MergeClient, dryRun bool, logger *slog.Logger) *Merger {
	return &Merger{
		client: client,
		dryRun: dryRun,
		logger: logging.NewComponentLogger(logger, "merger"),
	}
}

// Run processes decisions in order. A failed request never stops the run;
// only cancellation does.
func (m *Merger) Run(ctx context.Context, decisions []MergeDecision) (MergeStats, error) {
	var stats MergeStats
	logger := logging.WithContext(ctx, m.logger)
	for _, d := range decisions {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Groups++
		attrs := []logging.Attr{
			logging.String(logging.FieldRORID, d.RORID),
			logging.Strings("uuids", d.UUIDs),
			logging.Int("approved_count", d.ApprovedCount),
		}

		if !d.Planned() {
			stats.Skipped++
			attrs = append(attrs, logging.Outcome(logging.OutcomeSkipped), logging.Reason(d.Reason))
			switch d.Reason {
			case ReasonMultipleApproved:
				logging.WarnWithContext(logger, "merge group has multiple approved records",
					"merge_group_ambiguous",
					append(attrs,
						logging.String(logging.FieldErrorHint, "resolve the approval conflict in the registry, then re-run"),
						logging.String(logging.FieldImpact, "duplicates for this identifier remain unmerged"),
					)...)
			case ReasonNoApproved:
				logger.Info("merge group has no approved record", logging.Args(attrs...)...)
			default:
				logger.Info("merge group has nothing to merge", logging.Args(attrs...)...)
			}
			continue
		}

		stats.Planned++
		attrs = append(attrs, logging.String("target", d.Target()))
		if m.dryRun {
			logger.Info("merge planned (dry run)", logging.Args(append(attrs, logging.Outcome(logging.OutcomePlanned))...)...)
			continue
		}

		status, err := m.client.Merge(ctx, d.UUIDs)
		attrs = append(attrs, logging.Int(logging.FieldStatusCode, status))
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			var body string
			var statusErr *registry.StatusError
			if errors.As(err, &statusErr) {
				body = statusErr.Body
			}
			logging.ErrorWithContext(logger, "merge request failed",
				"merge_request_failed",
				append(attrs,
					logging.Outcome(logging.OutcomeFailed),
					logging.String("response", body),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "inspect the response body; the group can be retried on the next run"),
				)...)
			continue
		}
		stats.Succeeded++
		logger.Info("merge request sent", logging.Args(append(attrs, logging.Outcome(logging.OutcomeSucceeded))...)...)
	}
	return stats, nil
}
