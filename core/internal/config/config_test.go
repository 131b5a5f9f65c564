package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, os.TempDir(), cfg.BaseDir)
	assert.Equal(t, "grabbed.json", cfg.Output)
}

func TestLoadOverlaysFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(p, []byte("base_dir: /var/tmp/harvest\nworkers: 4\nlog_level: debug\n"), 0o600))

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "/var/tmp/harvest", cfg.BaseDir)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "grabbed.json", cfg.Output, "unset fields keep defaults")
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"unknown field": "bogus: 1\n",
		"bad workers":   "workers: 0\n",
		"bad level":     "log_level: loud\n",
		"empty base":    "base_dir: ''\n",
		"not yaml":      "workers: [\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)
}
