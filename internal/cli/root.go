// Package cli wires the sqlkernel commands.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/u2takey/sqlkernel/internal/config"
	"github.com/u2takey/sqlkernel/internal/logging"
	"github.com/u2takey/sqlkernel/internal/session"
)

type app struct {
	v           *viper.Viper
	cfgFile     string
	cfg         *config.Config
	logger      *zap.Logger
	closeLogger func()
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New(), logger: zap.NewNop(), closeLogger: func() {}}

	root := &cobra.Command{
		Use:          "sqlkernel",
		Short:        "sqlkernel - a Jupyter kernel for SQL notebooks with keyword and schema completion",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.closeLogger()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (yaml, json or toml)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-file", "", "also write JSON logs to this file")
	flags.String("database", session.MemoryDSN, "SQLite database the notebook runs against")

	_ = a.v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	_ = a.v.BindPFlag(config.KeyLogFile, flags.Lookup("log-file"))
	_ = a.v.BindPFlag(config.KeyDatabase, flags.Lookup("database"))

	root.AddCommand(
		newRunCommand(a),
		newInstallCommand(a),
		newCompleteCommand(a),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *app) load() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, closeLogger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	a.logger = logger
	a.closeLogger = closeLogger
	return nil
}

func (a *app) openSession() (*session.Session, error) {
	return session.Open(a.cfg.Database, a.logger)
}
