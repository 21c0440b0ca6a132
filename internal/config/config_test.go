package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, &Config{
		LogLevel:         "info",
		Database:         ":memory:",
		SchemaCompletion: true,
		KernelName:       "sqlkernel",
		DisplayName:      "SQL",
	}, cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sqlkernel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
database: /tmp/notebook.db
schema_completion: false
`), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/notebook.db", cfg.Database)
	assert.False(t, cfg.SchemaCompletion)
	assert.Equal(t, "sqlkernel", cfg.KernelName)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sqlkernel.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"database": "file.db"}`), 0o600))
	t.Setenv("SQLKERNEL_DATABASE", "env.db")

	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "env.db", cfg.Database)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load(v)
	assert.Error(t, err)
}

func TestLoadSearchPathWithoutFile(t *testing.T) {
	v := viper.New()
	v.SetConfigName("sqlkernel")
	v.AddConfigPath(t.TempDir())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "sqlkernel", cfg.KernelName)
}

func TestLoadMalformedFileOnSearchPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sqlkernel.yaml"), []byte("log_level: [debug\n"), 0o600))

	v := viper.New()
	v.SetConfigName("sqlkernel")
	v.AddConfigPath(dir)

	_, err := Load(v)
	assert.ErrorContains(t, err, "failed to load config")
}

func TestLoadInvalidLogLevel(t *testing.T) {
	v := viper.New()
	v.Set(KeyLogLevel, "loud")

	_, err := Load(v)
	assert.ErrorContains(t, err, "loud")
}
