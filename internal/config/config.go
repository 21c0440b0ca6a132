// Package config loads the kernel configuration from defaults, an optional
// config file, SQLKERNEL_* environment variables and command-line flags.
package config

import (
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"golang.org/x/xerrors"
)

// Keys understood by Load.
const (
	KeyLogLevel         = "log_level"
	KeyLogFile          = "log_file"
	KeyDatabase         = "database"
	KeySchemaCompletion = "schema_completion"
	KeyKernelName       = "kernel_name"
	KeyDisplayName      = "display_name"
)

// EnvPrefix prefixes environment variable overrides, e.g. SQLKERNEL_DATABASE.
const EnvPrefix = "SQLKERNEL"

// Config holds the merged kernel configuration.
type Config struct {
	LogLevel         string `mapstructure:"log_level"`
	LogFile          string `mapstructure:"log_file"`
	Database         string `mapstructure:"database"`
	SchemaCompletion bool   `mapstructure:"schema_completion"`
	KernelName       string `mapstructure:"kernel_name"`
	DisplayName      string `mapstructure:"display_name"`
}

// SetDefaults registers default values and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyDatabase, ":memory:")
	v.SetDefault(KeySchemaCompletion, true)
	v.SetDefault(KeyKernelName, "sqlkernel")
	v.SetDefault(KeyDisplayName, "SQL")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// Load reads the config file set on v, if any, and returns the merged configuration.
// A missing config file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !xerrors.As(err, &notFound) && v.ConfigFileUsed() != "" {
			return nil, xerrors.Errorf("failed to load config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, xerrors.Errorf("unmarshal config: %w", err)
	}

	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return nil, xerrors.Errorf("invalid %s %q: %w", KeyLogLevel, cfg.LogLevel, err)
	}
	if cfg.KernelName == "" {
		return nil, xerrors.Errorf("%s must not be empty", KeyKernelName)
	}

	return &cfg, nil
}
