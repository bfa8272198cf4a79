package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncache/internal/record"
)

const sampleYAML = `
server:
  url: http://example.test:9000
logging:
  level: debug
caches:
  - name: todos
    stale_time: 30s
    realtime: true
    max_snapshots: 8
    fields:
      due: iso_date
      done: bool_string
    defaults:
      done: false
    created_at: created_at
  - name: posts
`

const sampleTOML = `
[server]
url = "http://example.test:9000"

[logging]
level = "debug"

[[caches]]
name = "todos"
stale_time = "30s"
realtime = true
max_snapshots = 8

[caches.fields]
due = "iso_date"
done = "bool_string"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "syncache.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "http://example.test:9000", cfg.Server.URL)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr, "unset keys keep defaults")
	require.Len(t, cfg.Caches, 2)

	todos := cfg.Cache("todos")
	assert.Equal(t, 30*time.Second, todos.StaleTime.Duration())
	assert.True(t, todos.Realtime)
	assert.Equal(t, 8, todos.MaxSnapshots)
	assert.Equal(t, "iso_date", todos.Fields["due"])
	assert.Equal(t, false, todos.Defaults["done"])
}

func TestLoadTOML(t *testing.T) {
	cfg, err := Load(writeFile(t, "syncache.toml", sampleTOML))
	require.NoError(t, err)

	todos := cfg.Cache("todos")
	assert.Equal(t, 30*time.Second, todos.StaleTime.Duration())
	assert.Equal(t, 8, todos.MaxSnapshots)
	assert.Equal(t, "bool_string", todos.Fields["done"])
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unknown top-level key", "c.yaml", "extra: 1\n"},
		{"unknown cache key", "c.yaml", "caches:\n  - name: todos\n    color: red\n"},
		{"unknown codec", "c.yaml", "caches:\n  - name: todos\n    fields:\n      due: rot13\n"},
		{"bad log level", "c.yaml", "logging:\n  level: loud\n"},
		{"bad cache name", "c.yaml", "caches:\n  - name: Todos\n"},
		{"missing cache name", "c.yaml", "caches:\n  - realtime: true\n"},
		{"bad duration", "c.yaml", "caches:\n  - name: todos\n    stale_time: soon\n"},
		{"zero snapshots", "c.yaml", "caches:\n  - name: todos\n    max_snapshots: 0\n"},
		{"duplicate cache", "c.yaml", "caches:\n  - name: todos\n  - name: todos\n"},
		{"bad url", "c.toml", "[server]\nurl = \"ftp://x\"\n"},
		{"unknown toml key", "c.toml", "[server]\nport = 1\n"},
		{"malformed yaml", "c.yaml", "caches: [\n"},
		{"unsupported extension", "c.json", "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
		})
	}
}

func TestLoadEmptyFileUsesDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvServerURL, "http://override.test")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvDB, "/tmp/x.db")

	cfg, err := Load(writeFile(t, "syncache.yaml", sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "http://override.test", cfg.Server.URL)
	assert.Equal(t, "/tmp/x.db", cfg.Server.DB)
	assert.Equal(t, "warn", cfg.Logging.Level)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://override.test", cfg.Server.URL)
}

func TestCacheDefaultsForUnlistedName(t *testing.T) {
	cfg := Default()
	cc := cfg.Cache("anything")
	assert.Equal(t, "anything", cc.Name)

	t2, err := cc.Transformer()
	require.NoError(t, err)
	assert.Nil(t, t2)
}

func TestEngineConfig(t *testing.T) {
	cfg, err := Load(writeFile(t, "syncache.yaml", sampleYAML))
	require.NoError(t, err)

	ec, opts, err := cfg.Cache("todos").EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, "todos", ec.Name)
	assert.Equal(t, 30*time.Second, ec.StaleTime)
	require.NotNil(t, ec.Realtime)
	assert.False(t, ec.Realtime.AllowEcho)
	assert.Len(t, opts, 1)
	require.NotNil(t, ec.Transformer)

	ui, err := ec.Transformer.ToUI(record.Record{"id": "1", "done": "true", "due": "2026-03-01T00:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, true, ui["done"])
	assert.IsType(t, time.Time{}, ui["due"])

	plain, _, err := cfg.Cache("posts").EngineConfig()
	require.NoError(t, err)
	assert.Nil(t, plain.Transformer)
	assert.Nil(t, plain.Realtime)
}

func TestSlogLevel(t *testing.T) {
	cfg := Default()
	for level, want := range map[string]string{"debug": "DEBUG", "warn": "WARN", "error": "ERROR", "": "INFO"} {
		cfg.Logging.Level = level
		assert.Equal(t, want, cfg.SlogLevel().String())
	}
}
