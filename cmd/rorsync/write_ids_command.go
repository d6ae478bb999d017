package main

import (
	"github.com/spf13/cobra"

	"rorsync/internal/csvio"
	"rorsync/internal/reconcile"
	"rorsync/internal/records"
)

func newWriteIDsCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "write-ids <enriched.csv>",
		Short: "Record canonical identifiers on registry records",
		Long: `For every row with a ROR ID, fetch the registry record and append the
identifier unless the record already carries it. Re-running over the same file
sends no updates.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := ctx.startRun(cmd, "write-ids")
			if err != nil {
				return err
			}
			err = runWriteIDs(cmd, run, args[0], dryRun)
			run.finish(err)
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Fetch records and log planned updates without writing")
	return cmd
}

func runWriteIDs(cmd *cobra.Command, run *commandRun, inputPath string, dryRun bool) error {
	rows, err := csvio.ReadEnriched(inputPath, records.ColumnUUID, records.ColumnRORID)
	if err != nil {
		return err
	}
	client, err := run.registryClient()
	if err != nil {
		return err
	}

	writer := reconcile.NewIdentifierWriter(client, reconcile.IdentifierOptions{
		TypeURI:           run.cfg.Identifier.TypeURI,
		TypeDiscriminator: run.cfg.Identifier.TypeDiscriminator,
		Terms:             run.cfg.Identifier.Terms,
		DryRun:            dryRun,
	}, run.logger)
	stats, runErr := writer.Run(run.ctx, rows)
	printSummary(cmd.OutOrStdout(), "write-ids", []summaryRow{
		count("Rows", stats.Rows),
		count("No match", stats.Unmatched),
		count("Skipped", stats.Skipped),
		count("Planned", stats.Planned),
		count("Succeeded", stats.Succeeded),
		count("Failed", stats.Failed),
	}, stats.Failed, runErr)
	return runErr
}
