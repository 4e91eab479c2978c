package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, 256, cfg.Chunker.Size)
	assert.Equal(t, 100, cfg.Chunker.Overlap)
	assert.Equal(t, 3, cfg.Retrieval.DefaultTopK)
	assert.Equal(t, 5, cfg.Retrieval.MaxTopK)
	assert.Equal(t, "vault", cfg.Store.Collection)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "nomic-embed-text", cfg.LLM.EmbeddingModel)
	assert.Equal(t, 200, cfg.LLM.RewriteMaxTokens)
	assert.InDelta(t, 0.1, cfg.LLM.RewriteTemperature, 1e-9)
	assert.True(t, cfg.HasModel("gemma2:2b"))
}

func TestLoadFileDecodesAndEnvWins(t *testing.T) {
	path := writeConfig(t, `
[app]
port = 9000

[chunker]
size = 512
overlap = 64

[llm]
chat_model = "llama3"
models = ["llama3", "mistral"]
`)
	t.Setenv("APP_PORT", "9100")
	t.Setenv("RETRIEVAL_DEFAULT_TOP_K", "4")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.App.Port)
	assert.Equal(t, 512, cfg.Chunker.Size)
	assert.Equal(t, 64, cfg.Chunker.Overlap)
	assert.Equal(t, 4, cfg.Retrieval.DefaultTopK)
	assert.Equal(t, []string{"llama3", "mistral"}, cfg.LLM.Models)
	assert.Equal(t, "0.0.0.0:9100", cfg.HTTPAddr())
}

func TestLoadFileAddsChatModelToModels(t *testing.T) {
	t.Setenv("LLM_CHAT_MODEL", "phi3")
	t.Setenv("LLM_MODELS", "gemma2:2b, ,llama3")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, []string{"phi3", "gemma2:2b", "llama3"}, cfg.LLM.Models)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"overlap equals size", func(c *Config) { c.Chunker.Overlap = c.Chunker.Size }},
		{"negative overlap", func(c *Config) { c.Chunker.Overlap = -1 }},
		{"zero size", func(c *Config) { c.Chunker.Size = 0 }},
		{"default top k above max", func(c *Config) { c.Retrieval.DefaultTopK = 6 }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "oracle" }},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = "postgres" }},
		{"async without broker", func(c *Config) { c.Ingest.Async = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	assert.NoError(t, defaultConfig().Validate())
}

func TestSQLitePath(t *testing.T) {
	cfg := defaultConfig()
	cfg.Store.PersistDir = "/data"
	assert.Equal(t, filepath.Join("/data", "vault.db"), cfg.SQLitePath())
}

func TestInvalidEnvNumberFallsBack(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "lots")
	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Chunker.Size)
}
