package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"rorsync/internal/csvio"
	"rorsync/internal/reconcile"
	"rorsync/internal/records"
)

func readMergeRows(path string) ([]records.EnrichedRow, error) {
	return csvio.ReadEnriched(path, records.ColumnUUID, records.ColumnWorkflowStep, records.ColumnRORID)
}

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var showSkipped bool

	cmd := &cobra.Command{
		Use:   "plan <enriched.csv>",
		Short: "Show which duplicate groups would be merged",
		Long: `Group enriched rows by canonical identifier and print the merge plan
without contacting the registry. A group is planned only when exactly one of
its records is Approved; that record is listed first as the merge target.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := readMergeRows(args[0])
			if err != nil {
				return err
			}
			decisions := reconcile.PlanMerges(rows)

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(reconcile.MergePlan(decisions))
			}

			out := cmd.OutOrStdout()
			tableRows := make([][]string, 0, len(decisions))
			planned := 0
			for _, d := range decisions {
				if d.Planned() {
					planned++
				} else if !showSkipped {
					continue
				}
				status := "merge"
				if !d.Planned() {
					status = "skip: " + d.Reason
				}
				tableRows = append(tableRows, []string{
					d.RORID,
					status,
					d.Target(),
					strconv.Itoa(len(d.UUIDs)),
					strings.Join(d.UUIDs, ", "),
				})
			}
			if len(tableRows) == 0 {
				fmt.Fprintf(out, "No merge groups (%d groups examined)\n", len(decisions))
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ROR ID", "Status", "Target", "Records", "UUIDs"},
				tableRows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "%d of %d groups planned\n", planned, len(decisions))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the plan as JSON (ROR ID to ordered UUIDs)")
	cmd.Flags().BoolVar(&showSkipped, "all", false, "Include skipped groups and the reason they were skipped")
	return cmd
}

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "merge <enriched.csv>",
		Short: "Merge duplicate registry records that share a canonical identifier",
		Long: `Send one merge request per planned group. The approved record is the
merge target. Groups with no approved record, more than one approved record,
or a single record are skipped and logged. Every group produces one line in
the audit log.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := ctx.startRun(cmd, "merge")
			if err != nil {
				return err
			}
			err = runMerge(cmd, run, args[0], dryRun)
			run.finish(err)
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log the planned merges without sending them")
	return cmd
}

func runMerge(cmd *cobra.Command, run *commandRun, inputPath string, dryRun bool) error {
	rows, err := readMergeRows(inputPath)
	if err != nil {
		return err
	}
	var client reconcile.MergeClient
	if !dryRun {
		registryClient, err := run.registryClient()
		if err != nil {
			return err
		}
		client = registryClient
	}

	stats, runErr := reconcile.NewMerger(client, dryRun, run.logger).Run(run.ctx, reconcile.PlanMerges(rows))
	printSummary(cmd.OutOrStdout(), "merge", []summaryRow{
		count("Groups", stats.Groups),
		count("Planned", stats.Planned),
		count("Skipped", stats.Skipped),
		count("Succeeded", stats.Succeeded),
		count("Failed", stats.Failed),
	}, stats.Failed, runErr)
	return runErr
}
