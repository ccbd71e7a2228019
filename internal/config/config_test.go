package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerSettingString(t *testing.T) {
	tests := []struct {
		name string
		ws   WorkerSetting
		want string
	}{
		{"auto mode", WorkerSetting{Mode: WorkersAuto}, "auto"},
		{"fixed mode 4", WorkerSetting{Mode: WorkersFixed, Value: 4}, "4"},
		{"fixed mode 0", WorkerSetting{Mode: WorkersFixed, Value: 0}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.ws.String()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		envValue string
		want     string
	}{
		{"flag takes precedence", "/path/from/flag", "/path/from/env", "/path/from/flag"},
		{"env when no flag", "", "/path/from/env", "/path/from/env"},
		{"empty when neither", "", "", ""},
		{"whitespace flag", "  ", "/path/from/env", "/path/from/env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FEDBROKER_CONFIG", tt.envValue)
			got := ResolveConfigPath(tt.flag)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, WorkersAuto, cfg.Broker.Workers.Mode)
	assert.Equal(t, 1, cfg.Broker.LinkMinDefault)
	assert.Equal(t, 4, cfg.Broker.LinkMaxDefault)
	assert.Equal(t, 1024, cfg.Broker.TagMaxDefault)
	assert.True(t, cfg.Broker.EnableIPv6)
	require.Len(t, cfg.Resolver.Servers, 1)
	assert.Equal(t, "8.8.8.8", cfg.Resolver.Servers[0])
}

func TestLoadFromFile(t *testing.T) {
	content := `
broker:
  link_min_default: 2
  link_max_default: 6
  tag_max_default: 32
  workers: "2"
  enable_ipv6: false

resolver:
  servers:
    - "1.1.1.1"
    - "9.9.9.9"

directory:
  directory: "test-directory"

logging:
  level: "DEBUG"
  structured: true
  structured_format: "keyvalue"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test-config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, WorkersFixed, cfg.Broker.Workers.Mode)
	assert.Equal(t, 2, cfg.Broker.Workers.Value)
	assert.Equal(t, 2, cfg.Broker.LinkMinDefault)
	assert.Equal(t, 6, cfg.Broker.LinkMaxDefault)
	assert.False(t, cfg.Broker.EnableIPv6)
	assert.Len(t, cfg.Resolver.Servers, 2)
	assert.Equal(t, "test-directory", cfg.Directory.Directory)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Structured)
	assert.Equal(t, "keyvalue", cfg.Logging.StructuredFormat)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("broker:\n  link_max_default: [invalid"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeInvalidWorkers(t *testing.T) {
	content := `
broker:
  workers: "invalid"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	// With Viper, invalid workers gracefully defaults to "auto"
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, WorkersAuto, cfg.Broker.Workers.Mode)
}

func TestNormalizeClampsLinkMaxToAbsoluteCap(t *testing.T) {
	content := `
broker:
  link_max_default: 9000
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, LinkMaxAbsoluteCap, cfg.Broker.LinkMaxDefault, "expected link_max_default clamped to the absolute cap")
}

func TestNormalizeTruncatesResolverServers(t *testing.T) {
	content := `
resolver:
  servers:
    - "1.1.1.1"
    - "8.8.8.8"
    - "9.9.9.9"
    - "208.67.222.222"
    - "208.67.220.220"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Resolver.Servers, 3, "expected servers to be truncated to 3")
}

func TestNormalizeInvalidAdminPort(t *testing.T) {
	content := `
admin:
  enabled: true
  port: 0
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FEDBROKER_BROKER_LINK_MAX_DEFAULT", "8")
	t.Setenv("FEDBROKER_BROKER_WORKERS", "8")
	t.Setenv("FEDBROKER_RESOLVER_SERVERS", "1.1.1.1, 8.8.8.8:53")
	t.Setenv("FEDBROKER_DIRECTORY_DIRECTORY", "/custom/directory")
	t.Setenv("FEDBROKER_BROKER_ENABLE_IPV6", "false")
	t.Setenv("FEDBROKER_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Broker.LinkMaxDefault)
	assert.Equal(t, WorkersFixed, cfg.Broker.Workers.Mode)
	assert.Equal(t, 8, cfg.Broker.Workers.Value)
	assert.Len(t, cfg.Resolver.Servers, 2)
	assert.Equal(t, "/custom/directory", cfg.Directory.Directory)
	assert.False(t, cfg.Broker.EnableIPv6)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}
