package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/model"
)

const chunkInsertBatch = 100

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *ChunkRepository) WithTx(tx *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []model.VaultChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&chunks, chunkInsertBatch).Error; err != nil {
		return fmt.Errorf("create vault chunks batch failed: %w", err)
	}
	return nil
}

// ListByCollection returns every chunk in insertion order.
func (r *ChunkRepository) ListByCollection(ctx context.Context, collection string) ([]model.VaultChunk, error) {
	var chunks []model.VaultChunk
	if err := r.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("seq ASC").
		Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list vault chunks failed: %w", err)
	}
	return chunks, nil
}

func (r *ChunkRepository) CountByCollection(ctx context.Context, collection string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&model.VaultChunk{}).
		Where("collection = ?", collection).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count vault chunks failed: %w", err)
	}
	return count, nil
}
