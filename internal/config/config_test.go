package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
environment: production
storage:
  url: "https://example.supabase.co"
  min_connections: 5
  max_connections: 20
  acquire_timeout: 5s
  idle_timeout: 5m
  max_lifetime: 30m
  slow_query_millis: 50
vector:
  provider: memory
  dimension: 4
  metric: cosine
llm:
  provider: genai
  model: gemini-2.0-flash
  temperature: 0.1
  max_tokens: 512
  timeout: 10s
embedder:
  provider: genai
  model: text-embedding-004
  dimension: 4
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Production, cfg.Environment)
	assert.Equal(t, 20, cfg.Storage.MaxConnections)
	// Untouched sections retain their defaults.
	assert.Equal(t, EvictLRU, cfg.Cache.EvictionPolicy)
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: not-a-real-env\n"), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}
