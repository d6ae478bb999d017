package reconcile_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"rorsync/internal/logging"
	"rorsync/internal/reconcile"
	"rorsync/internal/records"
	"rorsync/internal/registry"
	"rorsync/internal/testsupport"
)

func enriched(uuid, step, rorID string) records.EnrichedRow {
	result := records.NoMatchResult()
	result.RORID = rorID
	return records.EnrichedRow{
		Organization: records.Organization{Name: "org " + uuid, UUID: uuid, WorkflowStep: step},
		MatchResult:  result,
	}
}

type fakeMergeClient struct {
	calls  [][]string
	status int
	err    error
}

func (f *fakeMergeClient) Merge(_ context.Context, uuids []string) (int, error) {
	f.calls = append(f.calls, append([]string(nil), uuids...))
	if f.status == 0 {
		f.status = 200
	}
	return f.status, f.err
}

func TestPlanMergesEndToEndExample(t *testing.T) {
	rows := []records.EnrichedRow{
		enriched("A", "Approved", "R1"),
		enriched("B", "Pending", "R1"),
		enriched("C", "Approved", "R2"),
	}
	decisions := reconcile.PlanMerges(rows)
	plan := reconcile.MergePlan(decisions)
	want := map[string][]string{"R1": {"A", "B"}}
	if !reflect.DeepEqual(plan, want) {
		t.Fatalf("MergePlan = %v, want %v", plan, want)
	}
	if len(decisions) != 2 || decisions[1].RORID != "R2" || decisions[1].Reason != reconcile.ReasonNothingToMerge {
		t.Fatalf("expected singleton R2 to be excluded, got %+v", decisions)
	}
}

func TestPlanMergesOrdering(t *testing.T) {
	rows := []records.EnrichedRow{
		enriched("u-9", "forApproval", "R1"),
		enriched("u-3", "", "R1"),
		enriched("u-5", "Approved", "R1"),
		enriched("u-1", "forApproval", "R1"),
		enriched("x", "Approved", records.NoMatch),
		enriched("y", "Approved", ""),
		enriched("", "Approved", "R1"),
	}
	decisions := reconcile.PlanMerges(rows)
	if len(decisions) != 1 {
		t.Fatalf("expected one group, got %+v", decisions)
	}
	got := decisions[0]
	if !got.Planned() || got.Target() != "u-5" {
		t.Fatalf("expected planned group with target u-5, got %+v", got)
	}
	if want := []string{"u-5", "u-1", "u-3", "u-9"}; !reflect.DeepEqual(got.UUIDs, want) {
		t.Fatalf("UUIDs = %v, want %v", got.UUIDs, want)
	}
}

func TestPlanMergesApprovalCounts(t *testing.T) {
	tests := []struct {
		name   string
		rows   []records.EnrichedRow
		reason string
	}{
		{
			name:   "none approved",
			rows:   []records.EnrichedRow{enriched("a", "Pending", "R"), enriched("b", "forApproval", "R")},
			reason: reconcile.ReasonNoApproved,
		},
		{
			name:   "two approved",
			rows:   []records.EnrichedRow{enriched("a", "Approved", "R"), enriched("b", "Approved", "R"), enriched("c", "", "R")},
			reason: reconcile.ReasonMultipleApproved,
		},
		{
			name:   "approved only",
			rows:   []records.EnrichedRow{enriched("a", "Approved", "R")},
			reason: reconcile.ReasonNothingToMerge,
		},
		{
			name:   "duplicate row for same uuid",
			rows:   []records.EnrichedRow{enriched("a", "Approved", "R"), enriched("a", "Approved", "R")},
			reason: reconcile.ReasonNothingToMerge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decisions := reconcile.PlanMerges(tt.rows)
			if len(decisions) != 1 || decisions[0].Reason != tt.reason {
				t.Fatalf("expected reason %q, got %+v", tt.reason, decisions)
			}
			if len(reconcile.MergePlan(decisions)) != 0 {
				t.Fatal("skipped groups must not appear in the plan")
			}
		})
	}
}

func TestMergerSkippedGroupsSendNothingAndLogOnce(t *testing.T) {
	for _, step := range []string{"Pending", "Approved"} {
		t.Run(step, func(t *testing.T) {
			rec, logger := testsupport.NewLogRecorder()
			client := &fakeMergeClient{}
			rows := []records.EnrichedRow{enriched("a", step, "R9"), enriched("b", step, "R9")}

			stats, err := reconcile.NewMerger(client, false, logger).Run(context.Background(), reconcile.PlanMerges(rows))
			if err != nil {
				t.Fatalf("Run returned error: %v", err)
			}
			if len(client.calls) != 0 {
				t.Fatalf("expected no merge requests, got %v", client.calls)
			}
			if stats.Skipped != 1 {
				t.Fatalf("stats = %+v", stats)
			}
			entries := rec.Matching(logging.FieldRORID, "R9")
			if len(entries) != 1 {
				t.Fatalf("expected exactly one log entry naming R9, got %d: %+v", len(entries), entries)
			}
			if entries[0].Attrs[logging.FieldOutcome] != logging.OutcomeSkipped {
				t.Fatalf("expected skipped outcome, got %+v", entries[0].Attrs)
			}
		})
	}
}

func TestMergerSendsApprovedFirst(t *testing.T) {
	rec, logger := testsupport.NewLogRecorder()
	client := &fakeMergeClient{}
	rows := []records.EnrichedRow{
		enriched("k3", "forApproval", "R1"),
		enriched("k1", "forApproval", "R1"),
		enriched("target", "Approved", "R1"),
	}

	stats, err := reconcile.NewMerger(client, false, logger).Run(context.Background(), reconcile.PlanMerges(rows))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if want := [][]string{{"target", "k1", "k3"}}; !reflect.DeepEqual(client.calls, want) {
		t.Fatalf("calls = %v, want %v", client.calls, want)
	}
	if stats.Succeeded != 1 || stats.Failed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	entries := rec.Matching(logging.FieldRORID, "R1")
	if len(entries) != 1 || entries[0].Attrs[logging.FieldOutcome] != logging.OutcomeSucceeded || entries[0].Attrs[logging.FieldStatusCode] != "200" {
		t.Fatalf("unexpected audit entries: %+v", entries)
	}
}

func TestMergerFailureIsLoggedAndRunContinues(t *testing.T) {
	rec, logger := testsupport.NewLogRecorder()
	client := &fakeMergeClient{status: 400, err: &registry.StatusError{Op: "merge organizations", StatusCode: 400, Body: "bad"}}
	rows := []records.EnrichedRow{
		enriched("a", "Approved", "R1"), enriched("b", "", "R1"),
		enriched("c", "Approved", "R2"), enriched("d", "", "R2"),
	}

	stats, err := reconcile.NewMerger(client, false, logger).Run(context.Background(), reconcile.PlanMerges(rows))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(client.calls) != 2 || stats.Failed != 2 {
		t.Fatalf("expected both groups attempted and failed, calls=%d stats=%+v", len(client.calls), stats)
	}
	failed := rec.Matching(logging.FieldOutcome, logging.OutcomeFailed)
	if len(failed) != 2 || failed[0].Attrs["response"] != "bad" {
		t.Fatalf("unexpected failure entries: %+v", failed)
	}
}

func TestMergerDryRun(t *testing.T) {
	client := &fakeMergeClient{}
	rows := []records.EnrichedRow{enriched("a", "Approved", "R1"), enriched("b", "", "R1")}
	stats, err := reconcile.NewMerger(client, true, nil).Run(context.Background(), reconcile.PlanMerges(rows))
	if err != nil {
		t.Fatal(err)
	}
	if len(client.calls) != 0 || stats.Planned != 1 {
		t.Fatalf("dry run sent requests: calls=%v stats=%+v", client.calls, stats)
	}
}

func TestMergerStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &fakeMergeClient{}
	rows := []records.EnrichedRow{enriched("a", "Approved", "R1"), enriched("b", "", "R1")}
	_, err := reconcile.NewMerger(client, false, nil).Run(ctx, reconcile.PlanMerges(rows))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(client.calls) != 0 {
		t.Fatal("no request expected after cancellation")
	}
}

func TestPlanMergesCountsDistinctApprovedRecords(t *testing.T) {
	rows := []records.EnrichedRow{
		enriched("a", "Approved", "R1"),
		enriched("a", "Approved", "R1"),
		enriched("b", "forApproval", "R1"),
	}
	decisions := reconcile.PlanMerges(rows)
	if len(decisions) != 1 {
		t.Fatalf("expected one group, got %+v", decisions)
	}
	got := decisions[0]
	if !got.Planned() || got.ApprovedCount != 1 {
		t.Fatalf("repeated rows for one approved uuid must count once, got %+v", got)
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(got.UUIDs, want) {
		t.Fatalf("UUIDs = %v, want %v", got.UUIDs, want)
	}
}
