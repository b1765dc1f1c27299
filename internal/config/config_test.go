package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Converter: ConverterConfig{Path: "/opt/converter", ChunkThresholdMB: 100, MaxConcurrentProcesses: 2},
		Paths:     PathsConfig{InputDir: "in", OutputDir: "out", TempDir: "tmp"},
	}
}

func TestValidate(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "no converter", mutate: func(c *Config) { c.Converter.Path = " " }, want: "converter.path"},
		{name: "zero threshold", mutate: func(c *Config) { c.Converter.ChunkThresholdMB = 0 }, want: "chunk_threshold_mb"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Converter.MaxConcurrentProcesses = 0 }, want: "max_concurrent_processes"},
		{name: "negative timeout", mutate: func(c *Config) { c.Converter.Timeout = -time.Second }, want: "timeout"},
		{name: "missing dir", mutate: func(c *Config) { c.Paths.TempDir = "" }, want: "temp_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, int64(100), cfg.Converter.ChunkThresholdMB)
	assert.Equal(t, 2, cfg.Converter.MaxConcurrentProcesses)
	assert.Equal(t, ".las", cfg.Converter.InputExtension)
	assert.Zero(t, cfg.Converter.Timeout)
	assert.Equal(t, "./data/temp", cfg.Paths.TempDir)
	assert.False(t, cfg.Database.MySQL.Enabled)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
converter:
  path: /usr/local/bin/PotreeConverter
  chunk_threshold_mb: 50
  max_concurrent_processes: 4
  timeout: 90s
paths:
  input_dir: /data/in
`), 0644))
	t.Setenv("PCCONV_CONVERTER_MAX_CONCURRENT_PROCESSES", "8")
	t.Setenv("PCCONV_JWT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/PotreeConverter", cfg.Converter.Path)
	assert.Equal(t, int64(50), cfg.Converter.ChunkThresholdMB)
	assert.Equal(t, 8, cfg.Converter.MaxConcurrentProcesses)
	assert.Equal(t, 90*time.Second, cfg.Converter.Timeout)
	assert.Equal(t, "/data/in", cfg.Paths.InputDir)
	assert.Equal(t, "./data/output", cfg.Paths.OutputDir)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
