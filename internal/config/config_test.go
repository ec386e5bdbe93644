package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	path := writeConfig(t, `{"basic_config": {"server_address": ":9000"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.BasicConfig.ServerAddress)
	assert.Equal(t, 5, cfg.Agent.TopK)
	assert.Equal(t, "text-embedding-004", cfg.Embedding.Model)
	assert.Equal(t, "knowledge_base1", cfg.Knowledge.Collection)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "chroma_db"), cfg.Knowledge.Path)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL())
	assert.False(t, cfg.Session.RollbackOnFailure)
}

func TestLoadEnvironmentOverridesKeys(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "env-key")
	t.Setenv("GOOGLE_SEARCH_ENGINE_ID", "engine")
	path := writeConfig(t, `{"providers": {"gemini": {"api_key": "file-key", "model": "gemini-2.0-flash"}}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.ProviderKey("gemini"))
	assert.Equal(t, "gemini-2.0-flash", cfg.Providers["gemini"].Model)
	assert.Equal(t, "engine", cfg.Search.SearchEngineID)
	// agent model falls back to the provider entry
	assert.Equal(t, "gemini-2.0-flash", cfg.Agent.Model)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"provider": `{"agent": {"provider": "mystery"}}`,
		"search":   `{"search": {"provider": "bing"}}`,
		"backend":  `{"session": {"backend": "disk"}}`,
		"archive":  `{"archive": {"driver": "postgres"}}`,
		"overlap":  `{"knowledge": {"chunk_size": 100, "chunk_overlap": 100}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestLoadWithoutDefaultFile(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.BasicConfig.ServerAddress)
	assert.Equal(t, "chroma_db", cfg.Knowledge.Path)
}
