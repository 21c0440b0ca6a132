package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/u2takey/sqlkernel/internal/kernel"
)

func newRunCommand(a *app) *cobra.Command {
	var connectionFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the kernel for a Jupyter front-end",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := a.openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			a.logger.Info("starting kernel",
				zap.String("connection_file", connectionFile),
				zap.String("database", s.DSN()),
				zap.Bool("schema_completion", a.cfg.SchemaCompletion),
			)

			k := kernel.New(s,
				kernel.WithLogger(a.logger),
				kernel.WithSchemaCompletion(a.cfg.SchemaCompletion),
			)
			return k.Run(ctx, connectionFile)
		},
	}

	cmd.Flags().StringVarP(&connectionFile, "connection-file", "f", "", "connection file written by Jupyter")
	_ = cmd.MarkFlagRequired("connection-file")

	return cmd
}
