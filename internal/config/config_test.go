package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTmpConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, `
pollcore:
  node:
    hostname: "test-host"
  control:
    socket: "/tmp/test.sock"
  poller:
    source_ip: "10.0.0.5"
    timeout: "2s"
    unavailable_delay: "300s"
    unreachable_delay: "15s"
    unreachable_period: "60s"
    max_concurrent_checks_per_poller: 500
    process_num: 2
  preproc:
    workers: 8
`))
	require.NoError(t, err)

	assert.Equal(t, "test-host", cfg.Node.Hostname)
	assert.Equal(t, "/tmp/test.sock", cfg.Control.Socket)
	assert.Equal(t, "10.0.0.5", cfg.Poller.SourceIP)
	assert.Equal(t, 2*time.Second, cfg.Poller.Timeout)
	assert.Equal(t, 300*time.Second, cfg.Poller.UnavailableDelay)
	assert.Equal(t, 500, cfg.Poller.MaxConcurrentChecksPerPoller)
	assert.Equal(t, 8, cfg.Preproc.Workers)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, `
pollcore:
  node:
    hostname: "minimal"
`))
	require.NoError(t, err)

	assert.Equal(t, "/var/run/pollcore.sock", cfg.Control.Socket)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 1000, cfg.Poller.MaxConcurrentChecksPerPoller)
	assert.Equal(t, 4, cfg.Preproc.Workers)
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
pollcore:
  log:
    level: "verbose"
`))
	require.Error(t, err)
}

func TestLoadRejectsNonPositiveWorkers(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
pollcore:
  preproc:
    workers: 0
`))
	require.Error(t, err)
}
