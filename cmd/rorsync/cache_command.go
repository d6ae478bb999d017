package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rorsync/internal/matchcache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the match cache",
		Long: `Inspect and manage the match cache.

The match cache stores matcher answers by normalized organization name so
repeated exports do not spend request quota on names already resolved.

Commands:
  list     - List cached names and their identifiers
  remove   - Remove the entry for one organization name
  clear    - Remove all cached entries`,
	}

	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheRemoveCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached matches",
		Long:  "Display all cached matcher answers, most recently cached first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openMatchCache(ctx)
			if err != nil {
				return err
			}
			defer cache.Close()

			entries, err := cache.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Match cache: empty")
				return nil
			}

			const stampLayout = "2006-01-02"
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					entry.Name,
					entry.Result.RORID,
					entry.Result.Score,
					entry.CachedAt.Local().Format(stampLayout),
				})
			}
			fmt.Fprintf(out, "Match cache: %d entries (%s)\n", len(entries), cache.Path())
			fmt.Fprintln(out, renderTable(
				[]string{"Name", "ROR ID", "Score", "Cached"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func newCacheRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove the cached match for an organization name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openMatchCache(ctx)
			if err != nil {
				return err
			}
			defer cache.Close()

			if err := cache.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed cached match for %q\n", args[0])
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cache entries",
		Long:  "Delete all cached matcher answers. The cache is repopulated by the next export or match run.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openMatchCache(ctx)
			if err != nil {
				return err
			}
			defer cache.Close()

			n, err := cache.Count(cmd.Context())
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Match cache is already empty")
				return nil
			}
			if err := cache.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d match cache entries\n", n)
			return nil
		},
	}
}

func openMatchCache(ctx *commandContext) (*matchcache.Cache, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return matchcache.Open(cfg.MatchCache.Path, nil)
}
