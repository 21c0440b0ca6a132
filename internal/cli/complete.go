package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/u2takey/sqlkernel/internal/completion"
)

func newCompleteCommand(a *app) *cobra.Command {
	var offset int

	cmd := &cobra.Command{
		Use:   "complete [TOKEN]",
		Short: "Print the completions the kernel offers for a token",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			}

			opts := []completion.Option{completion.WithLogger(a.logger)}
			if a.cfg.SchemaCompletion {
				s, err := a.openSession()
				if err != nil {
					return err
				}
				defer s.Close()
				opts = append(opts, completion.WithSchemaLookup(s))
			}

			reply := completion.NewConnector(opts...).Complete(cmd.Context(), completion.Request{
				TokenText:   token,
				TokenOffset: offset,
			})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(reply)
		},
	}

	cmd.Flags().IntVar(&offset, "offset", 0, "offset of the token in the cell")

	return cmd
}
