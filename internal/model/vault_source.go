package model

import "time"

// VaultSource records one ingested file.
type VaultSource struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Collection string    `gorm:"size:64;not null;index" json:"collection"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Digest     string    `gorm:"size:64;not null;index" json:"digest"`
	Kind       string    `gorm:"size:16" json:"kind"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}
