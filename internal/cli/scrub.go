package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// scrubCommand creates the scrub command, the out-of-band cleanup pass.
// Sync classifies vanished modules out of its working dataset but never
// deletes their records; scrub does, by re-listing the repositories and
// removing every persisted record whose module no longer exists upstream.
//
// The record keyspace is walked via SCAN in addition to the name index,
// so records orphaned by a torn index are found and reconciled too.
func (c *CLI) scrubCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "scrub",
		Short: "Remove persisted records for modules gone from all repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			st, err := c.newStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			tool := c.newTool(cfg)

			// Live names across every repository. Scrub must not delete on
			// partial knowledge: any listing failure aborts.
			live := make(map[string]bool)
			for _, repo := range cfg.Repositories {
				candidates, err := tool.ListRepository(ctx, repo)
				if err != nil {
					return err
				}
				for _, cand := range candidates {
					live[cand.Name] = true
				}
			}

			indexed, err := st.Members(ctx)
			if err != nil {
				return err
			}
			scanned, err := st.ScanRecords(ctx, "")
			if err != nil {
				return err
			}

			known := make(map[string]bool, len(indexed)+len(scanned))
			for _, name := range indexed {
				known[name] = true
			}
			for _, name := range scanned {
				known[name] = true
			}

			var orphans []string
			for name := range known {
				if !live[name] {
					orphans = append(orphans, name)
				}
			}
			sort.Strings(orphans)

			if len(orphans) == 0 {
				logger.Info("nothing to scrub", "records", len(known))
				return nil
			}

			for _, name := range orphans {
				if dryRun {
					fmt.Fprintf(cmd.OutOrStdout(), "would remove %s\n", name)
					continue
				}
				if err := st.Delete(ctx, name); err != nil {
					logger.Error("scrub failed for module", "module", name, "err", err)
					continue
				}
				logger.Info("scrubbed module", "module", name)
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%d orphaned records (dry run)\n", len(orphans))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list orphaned records without deleting them")
	return cmd
}
