package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/model"
)

type SourceRepository struct {
	db *gorm.DB
}

func NewSourceRepository(db *gorm.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

func (r *SourceRepository) WithTx(tx *gorm.DB) *SourceRepository {
	return &SourceRepository{db: tx}
}

func (r *SourceRepository) Create(ctx context.Context, source *model.VaultSource) error {
	if err := r.db.WithContext(ctx).Create(source).Error; err != nil {
		return fmt.Errorf("create vault source failed: %w", err)
	}
	return nil
}

func (r *SourceRepository) ListByCollection(ctx context.Context, collection string) ([]model.VaultSource, error) {
	var sources []model.VaultSource
	if err := r.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("id ASC").
		Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("list vault sources failed: %w", err)
	}
	return sources, nil
}
