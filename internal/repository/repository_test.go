package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/model"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/platform/database"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func chunk(collection string, i int) model.VaultChunk {
	c := model.VaultChunk{
		ChunkID:    fmt.Sprintf("%s-%d", collection, i),
		Collection: collection,
		Source:     "doc.txt",
		ChunkIndex: i,
		Content:    fmt.Sprintf("chunk %d", i),
	}
	c.SetEmbedding([]float32{float32(i), 1})
	return c
}

func TestChunkRepositoryListsInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(openDB(t))

	require.NoError(t, repo.CreateBatch(ctx, []model.VaultChunk{chunk("vault", 2), chunk("vault", 0)}))
	require.NoError(t, repo.CreateBatch(ctx, []model.VaultChunk{chunk("vault", 1), chunk("other", 0)}))
	require.NoError(t, repo.CreateBatch(ctx, nil))

	chunks, err := repo.ListByCollection(ctx, "vault")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"vault-2", "vault-0", "vault-1"},
		[]string{chunks[0].ChunkID, chunks[1].ChunkID, chunks[2].ChunkID})

	count, err := repo.CountByCollection(ctx, "vault")
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestChunkRepositoryDuplicateIDFails(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(openDB(t))

	require.NoError(t, repo.CreateBatch(ctx, []model.VaultChunk{chunk("vault", 0)}))
	assert.Error(t, repo.CreateBatch(ctx, []model.VaultChunk{chunk("vault", 0)}))
}

func TestRepositoriesShareTransaction(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	chunks := NewChunkRepository(db)
	sources := NewSourceRepository(db)

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := chunks.WithTx(tx).CreateBatch(ctx, []model.VaultChunk{chunk("vault", 0)}); err != nil {
			return err
		}
		if err := sources.WithTx(tx).Create(ctx, &model.VaultSource{Collection: "vault", Name: "doc.txt", Digest: "d"}); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	require.Error(t, err)

	count, err := chunks.CountByCollection(ctx, "vault")
	require.NoError(t, err)
	assert.Zero(t, count)
	listed, err := sources.ListByCollection(ctx, "vault")
	require.NoError(t, err)
	assert.Empty(t, listed)
}
