package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"rorsync/internal/csvio"
	"rorsync/internal/reconcile"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var outputPath string
	var appendOutput bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Page through registry organizations and match each name",
		Long: `Fetch every external organization from the registry, look up the best
canonical identifier for its name, and append one enriched row per record to
the output CSV. Failed pages are logged and skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := ctx.startRun(cmd, "export")
			if err != nil {
				return err
			}
			err = runExport(cmd, run, outputPath, appendOutput)
			run.finish(err)
			return err
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Enriched CSV to write (default: paths.output_file)")
	cmd.Flags().BoolVar(&appendOutput, "append", true, "Append to an existing output file instead of truncating it")
	return cmd
}

func runExport(cmd *cobra.Command, run *commandRun, outputPath string, appendOutput bool) (err error) {
	client, err := run.registryClient()
	if err != nil {
		return err
	}
	output := resolveOutput(run, outputPath)
	sink, err := csvio.OpenSink(output, csvio.SinkOptions{Append: appendOutput, Delimiter: run.cfg.OutputDelimiter()})
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, sink.Close()) }()

	matcher, release, err := run.matcher()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, release()) }()

	source := reconcile.NewRegistrySource(client, reconcile.RegistrySourceOptions{
		PageSize:           run.cfg.Registry.PageSize,
		StartOffset:        run.cfg.Registry.StartOffset,
		NameLocale:         run.cfg.Registry.NameLocale,
		MaxStartupFailures: run.cfg.Registry.MaxStartupFailures,
	}, run.logger)

	stats, runErr := reconcile.NewEnricher(matcher, sink, run.logger).Run(run.ctx, source)
	total, _ := source.Total()
	paging := source.Stats()
	printSummary(cmd.OutOrStdout(), "export", []summaryRow{
		count("Registry total", total),
		count("Pages fetched", paging.Pages),
		count("Pages skipped", paging.PagesSkipped),
		count("Records skipped", paging.RecordsSkipped),
		count("Rows written", stats.Processed),
		count("Matched", stats.Matched),
		count("No match", stats.Unmatched),
		{label: "Output", value: sink.Path()},
	}, paging.PagesSkipped+paging.RecordsSkipped, runErr)
	return runErr
}

func resolveOutput(run *commandRun, flag string) string {
	if path := strings.TrimSpace(flag); path != "" {
		return path
	}
	return run.cfg.Paths.OutputFile
}
