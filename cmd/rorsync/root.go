package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var apiKeyFlag string
	var baseURLFlag string

	ctx := newCommandContext(&configFlag, &apiKeyFlag, &baseURLFlag)

	rootCmd := &cobra.Command{
		Use:           "rorsync",
		Short:         "Reconcile registry organizations with canonical ROR identifiers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&apiKeyFlag, "api-key", "", "Registry API key (overrides config and PURE_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "base-url", "", "Registry API base URL (overrides config and PURE_BASE_URL)")

	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newMatchCommand(ctx))
	rootCmd.AddCommand(newPlanCommand(ctx))
	rootCmd.AddCommand(newMergeCommand(ctx))
	rootCmd.AddCommand(newWriteIDsCommand(ctx))
	rootCmd.AddCommand(newCacheCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
