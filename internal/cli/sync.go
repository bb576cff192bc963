package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/zefline/pkg/pipeline"
)

// syncOpts holds the command-line flags for the sync command.
type syncOpts struct {
	refresh bool // re-resolve every module, bypassing the cache diff
	dryRun  bool // compute but do not publish
}

// syncCommand creates the sync command, the full pipeline run.
func (c *CLI) syncCommand() *cobra.Command {
	var opts syncOpts

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Scan repositories and publish a fresh install order",
		Long: `Sync runs the full pipeline: list every configured repository in priority
order, arbitrate one winning release per module, resolve dependencies for
new and stale modules (reusing cached records for current ones), sort the
dependency graph, and replace the published install order.

Each resolved record is persisted immediately, so an interrupted sync can
be re-run and picks up where it left off.

Examples:
  zefline sync              # incremental sync
  zefline sync --refresh    # re-resolve everything
  zefline sync --dry-run    # print the order without publishing`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			runner, st, err := c.newRunner(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			prog := newProgress(logger)
			result, err := runner.Execute(cmd.Context(), pipeline.Options{
				Repositories: cfg.Repositories,
				Refresh:      opts.refresh,
				DryRun:       opts.dryRun,
				Logger:       logger,
			})
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Synced %d modules", len(result.Order)))

			printSyncSummary(cmd, result, opts.dryRun)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "re-resolve every module, ignoring cached records")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "compute the order but do not publish it")

	return cmd
}

// printSyncSummary writes the human-readable run report to stdout.
// Warnings are part of the report, not just the log stream, so operators
// auditing a sync see unresolved modules and cycle members without
// digging through logs.
func printSyncSummary(cmd *cobra.Command, result *pipeline.Result, dryRun bool) {
	out := cmd.OutOrStdout()

	verb := "published"
	if dryRun {
		verb = "computed (not published)"
	}
	fmt.Fprintf(out, "Install order %s: %d modules (%d new, %d stale, %d reused)\n",
		verb, len(result.Order), result.Stats.New, result.Stats.Stale, result.Stats.Reused)

	if len(result.Cyclic) > 0 {
		fmt.Fprintf(out, "WARNING: dependency cycle, appended to tail: %s\n",
			strings.Join(result.Cyclic, ", "))
	}
	if len(result.Unresolved) > 0 {
		fmt.Fprintf(out, "WARNING: recorded with unknown dependencies: %s\n",
			strings.Join(result.Unresolved, ", "))
	}
	if len(result.FailedPersist) > 0 {
		fmt.Fprintf(out, "WARNING: not persisted, will retry next sync: %s\n",
			strings.Join(result.FailedPersist, ", "))
	}
}
