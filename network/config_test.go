package network

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/momentics/hioload-net/api"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "network.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("TEST_DNS_SERVER", "10.0.0.53:53")
	path := writeConfig(t, `
read_chunk_size: 4096
separate_ipv4_listener: true
pin_reactor: true
no_delay: false
lookup_timeout: 3s
dns_servers:
  - ${TEST_DNS_SERVER}
log_level: debug
log_format: json
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4096, cfg.ReadChunkSize)
	assert.Equal(t, 128, cfg.ListenBacklog, "missing fields keep defaults")
	assert.Equal(t, 128, cfg.MaxEvents)
	assert.True(t, cfg.SeparateIPv4Listener)
	assert.True(t, cfg.PinReactor)
	assert.Equal(t, 0, cfg.ReactorCPU)
	assert.False(t, cfg.NoDelay)
	assert.Equal(t, 3*time.Second, cfg.LookupTimeout)
	assert.Equal(t, []string{"10.0.0.53:53"}, cfg.DNSServers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)

	logger, err := cfg.buildLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadConfig(writeConfig(t, "read_chunk_size: [1, 2]"))
	assert.Error(t, err)

	for _, body := range []string{
		"read_chunk_size: -1",
		"listen_backlog: -5",
		"lookup_timeout: -1s",
		"reactor_cpu: -2",
		"dns_servers: [127.0.0.1]",
		"log_level: loud",
		"log_format: xml",
	} {
		_, err := LoadConfig(writeConfig(t, body))
		assert.ErrorIs(t, err, api.ErrInvalidArgument, body)
	}
}

func TestConfig_DefaultLoggerIsNop(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	logger, err := cfg.buildLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))
}
