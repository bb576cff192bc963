package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// orderCommand creates the order command, which prints the currently
// published install order front-to-back, one identity per line. This is
// the exact sequence the installer consumes.
func (c *CLI) orderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "order",
		Short: "Print the currently published install order",
		Args:  cobra.NoArgs,
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

			list, err := st.OrderedList(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				loggerFromContext(cmd.Context()).Warn("no install order published yet, run sync first")
				return nil
			}
			for _, ident := range list {
				fmt.Fprintln(cmd.OutOrStdout(), ident)
			}
			return nil
		},
	}
}
