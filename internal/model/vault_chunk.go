package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Vector is an embedding column. It is stored as a pgvector "vector" on
// Postgres and as the same bracketed text form on other dialects.
type Vector struct {
	pgvector.Vector
}

func NewVector(vec []float32) Vector {
	return Vector{Vector: pgvector.NewVector(vec)}
}

func (Vector) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "vector"
	case "mysql":
		return "longtext"
	default:
		return "text"
	}
}

// VaultChunk is one embedded chunk. Seq is assigned on insert and gives the
// insertion order used to break similarity ties.
type VaultChunk struct {
	Seq        uint64            `gorm:"primaryKey;autoIncrement" json:"seq"`
	ChunkID    string            `gorm:"size:191;not null;uniqueIndex" json:"chunk_id"`
	Collection string            `gorm:"size:64;not null;index" json:"collection"`
	Source     string            `gorm:"size:255;not null;index" json:"source"`
	ChunkIndex int               `gorm:"not null" json:"chunk_index"`
	Content    string            `gorm:"type:text;not null" json:"content"`
	Metadata   datatypes.JSONMap `json:"metadata"`
	Embedding  Vector            `gorm:"not null" json:"-"`
	CreatedAt  time.Time         `json:"created_at"`
}

// EmbeddingVector returns the stored embedding.
func (c *VaultChunk) EmbeddingVector() []float32 {
	return c.Embedding.Slice()
}

func (c *VaultChunk) SetEmbedding(vec []float32) {
	c.Embedding = NewVector(vec)
}
