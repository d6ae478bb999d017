package main

import (
	"errors"

	"github.com/spf13/cobra"

	"rorsync/internal/csvio"
	"rorsync/internal/reconcile"
)

func newMatchCommand(ctx *commandContext) *cobra.Command {
	var outputPath string
	var appendOutput bool

	cmd := &cobra.Command{
		Use:   "match <input.csv>",
		Short: "Match organizations from a CSV export",
		Long: `Read an organization export with the columns Name, UUID and
"Current workflow step" (comma or semicolon separated), look up the best
canonical identifier for each name, and write one enriched row per input row.

Useful against a local matcher container:
  rorsync match orgs.csv   # with matcher.base_url = "http://localhost:9292"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := ctx.startRun(cmd, "match")
			if err != nil {
				return err
			}
			err = runMatch(cmd, run, args[0], outputPath, appendOutput)
			run.finish(err)
			return err
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Enriched CSV to write (default: paths.output_file)")
	cmd.Flags().BoolVar(&appendOutput, "append", false, "Append to an existing output file instead of truncating it")
	return cmd
}

func runMatch(cmd *cobra.Command, run *commandRun, inputPath, outputPath string, appendOutput bool) (err error) {
	orgs, err := csvio.ReadOrganizations(inputPath)
	if err != nil {
		return err
	}
	sink, err := csvio.OpenSink(resolveOutput(run, outputPath), csvio.SinkOptions{Append: appendOutput, Delimiter: run.cfg.OutputDelimiter()})
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, sink.Close()) }()

	matcher, release, err := run.matcher()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, release()) }()

	source := reconcile.NewFileSource(orgs, run.cfg.Registry.PageSize)
	stats, runErr := reconcile.NewEnricher(matcher, sink, run.logger).Run(run.ctx, source)
	printSummary(cmd.OutOrStdout(), "match", []summaryRow{
		count("Rows read", source.Len()),
		count("Rows written", stats.Processed),
		count("Matched", stats.Matched),
		count("No match", stats.Unmatched),
		{label: "Output", value: sink.Path()},
	}, 0, runErr)
	return runErr
}
