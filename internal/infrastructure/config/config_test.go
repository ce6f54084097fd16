package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, 8080, cfg.App.HTTPPort)
	assert.Equal(t, "targeted", cfg.Index.TraversalMode)
	assert.Equal(t, 30*time.Second, cfg.Index.SaveTimeout)
	assert.Equal(t, "accounts", cfg.NATS.SubjectPrefix)
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectDelay)
	assert.Equal(t, "ACCOUNTS", cfg.NATS.StreamName)
	assert.Equal(t, "account-graph-indexer", cfg.NATS.DurableConsumer)
	assert.Equal(t, 10, cfg.NATS.FetchBatchSize)
	assert.Equal(t, 5*time.Second, cfg.NATS.FetchMaxWait)
	assert.False(t, cfg.Neo4J.Enabled)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "indexer.yaml")
	content := []byte(`
index:
  traversal_mode: first_dead_end
neo4j:
  enabled: true
  database: accounts
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("APP_HTTP_PORT", "9191")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "first_dead_end", cfg.Index.TraversalMode)
	assert.True(t, cfg.Neo4J.Enabled)
	assert.Equal(t, "accounts", cfg.Neo4J.Database)
	assert.Equal(t, 9191, cfg.App.HTTPPort)
}
