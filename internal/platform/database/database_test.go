package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/config"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/model"
)

func TestNewSQLiteMigratesAndRoundTripsVectors(t *testing.T) {
	cfg, err := config.LoadFile("")
	require.NoError(t, err)
	cfg.Store.PersistDir = filepath.Join(t.TempDir(), "nested")

	db, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer Close(db)

	assert.FileExists(t, cfg.SQLitePath())
	assert.True(t, db.Migrator().HasTable(&model.VaultChunk{}))
	assert.True(t, db.Migrator().HasTable(&model.VaultSource{}))

	chunk := model.VaultChunk{
		ChunkID:    "a.txt-1",
		Collection: "vault",
		Source:     "a.txt",
		Content:    "The sky is blue",
		Metadata:   map[string]interface{}{"page": "1"},
	}
	chunk.SetEmbedding([]float32{0.25, -1, 3})
	require.NoError(t, db.Create(&chunk).Error)
	assert.NotZero(t, chunk.Seq)

	var loaded model.VaultChunk
	require.NoError(t, db.First(&loaded, "chunk_id = ?", "a.txt-1").Error)
	assert.Equal(t, []float32{0.25, -1, 3}, loaded.EmbeddingVector())
	assert.Equal(t, "1", loaded.Metadata["page"])
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg, err := config.LoadFile("")
	require.NoError(t, err)
	cfg.Store.Driver = "oracle"

	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}
