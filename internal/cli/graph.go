package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/zefline/pkg/catalog"
	"github.com/matzehuels/zefline/pkg/order"
)

// graphCommand creates the graph command, which renders the persisted
// dependency graph as Graphviz DOT text for inspection. The graph is
// rebuilt from the cached records, so it reflects the last sync, not a
// live scan.
func (c *CLI) graphCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Emit the dependency graph as Graphviz DOT",
		Long: `Graph rebuilds the dependency graph from the persisted catalog and writes
it as Graphviz DOT text. Pipe it to dot for rendering:

  zefline graph | dot -Tsvg -o deps.svg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			st, err := c.newStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			cached, err := st.BulkLoad(cmd.Context())
			if err != nil {
				return err
			}
			records := make(map[string]catalog.Record, len(cached))
			for name, rec := range cached {
				if rec.Valid() {
					records[name] = *rec
				}
			}
			if len(records) == 0 {
				loggerFromContext(cmd.Context()).Warn("catalog is empty, run sync first")
				return nil
			}

			dot := order.ToDOT(records)
			if output == "" {
				fmt.Fprint(cmd.OutOrStdout(), dot)
				return nil
			}
			return os.WriteFile(output, []byte(dot), 0644)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout if empty)")
	return cmd
}
