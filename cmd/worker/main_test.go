package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWorkerConfig(t *testing.T, logFile string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mqtt:
  broker: tcp://127.0.0.1:1
  connect_timeout: 2s
storage:
  driver: memory
broadcast:
  driver: none
status:
  enabled: false
log:
  file: `+logFile+`
`), 0600))
	return path
}

// TestRun_BrokerFailureFlushesLogFile tests that a startup failure exits 1 with the error in the log file.
func TestRun_BrokerFailureFlushesLogFile(t *testing.T) {
	// Setup
	logFile := filepath.Join(t.TempDir(), "worker.log")
	configPath := writeWorkerConfig(t, logFile)
	var stdout bytes.Buffer
	waited := false

	// Execute
	code := run(configPath, &stdout, func() string { waited = true; return "test" })

	// Assert
	assert.Equal(t, 1, code)
	assert.False(t, waited)

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"level":"fatal"`)
	assert.Contains(t, string(data), "connect to MQTT broker tcp://127.0.0.1:1")
	assert.Contains(t, stdout.String(), "Worker failed")
}

func TestRun_ConfigFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: sqlite\n"), 0600))

	code := run(path, &bytes.Buffer{}, func() string { return "" })

	assert.Equal(t, 1, code)
}
