package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"json", func(c *Config) { c.Format = FormatJSON }, false},
		{"debug", func(c *Config) { c.Level = "debug" }, false},
		{"bad level", func(c *Config) { c.Level = "chatty" }, true},
		{"bad format", func(c *Config) { c.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_JSONConsoleRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = FormatJSON
	cfg.Level = "warn"

	logger, err := newLogger(cfg, &buf)
	require.NoError(t, err)

	logger.Info("ignored")
	logger.Warn("rep counter reset")
	require.NoError(t, logger.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "rep counter reset", entry["msg"])
	assert.Contains(t, entry, "timestamp")
}

func TestNew_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "squatcoach.log")
	cfg := DefaultConfig()
	cfg.File = path

	var console bytes.Buffer
	logger, err := newLogger(cfg, &console)
	require.NoError(t, err)

	logger.Info("pipeline started")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"pipeline started"`)
	assert.Contains(t, console.String(), "pipeline started")
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	_, err := New(cfg)
	assert.Error(t, err)
}
