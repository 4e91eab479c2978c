// Package vectorstore persists embedded chunks and answers similarity queries.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/chunker"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/model"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/pkg/logger"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/repository"
)

const (
	defaultBatchSize = 10
	defaultTopK      = 3
)

var ErrStoreIO = errors.New("embedding store io error")

// Embedder computes embeddings for chunk texts and queries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Source describes the file a batch of chunks came from.
type Source struct {
	Name   string
	Digest string
	Kind   string
}

// Result is one retrieved chunk.
type Result struct {
	ChunkID  string            `json:"chunk_id"`
	Text     string            `json:"text"`
	Source   string            `json:"source"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Store is a collection of embedded chunks. Writes are serialised: only one
// Add runs at a time per Store, and each Add commits atomically.
type Store struct {
	writeMu sync.Mutex

	db         *gorm.DB
	chunks     *repository.ChunkRepository
	sources    *repository.SourceRepository
	embedder   Embedder
	collection string

	batchSize   int
	defaultTopK int
	log         *zap.Logger
}

type Option func(*Store)

func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithDefaultTopK sets k used when a query asks for k <= 0.
func WithDefaultTopK(k int) Option {
	return func(s *Store) {
		if k > 0 {
			s.defaultTopK = k
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.log = logger.OrNop(l)
	}
}

func New(db *gorm.DB, embedder Embedder, collection string, opts ...Option) *Store {
	s := &Store{
		db:          db,
		chunks:      repository.NewChunkRepository(db),
		sources:     repository.NewSourceRepository(db),
		embedder:    embedder,
		collection:  collection,
		batchSize:   defaultBatchSize,
		defaultTopK: defaultTopK,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("vectorstore")
	return s
}

func (s *Store) Collection() string { return s.collection }

// Add embeds every chunk and stores them with the source record in one
// transaction. Nothing is written if any embedding fails. Chunks with only
// whitespace are skipped. It returns the number of chunks stored.
func (s *Store) Add(ctx context.Context, src Source, chunks []chunker.Chunk) (int, error) {
	kept := make([]chunker.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) != "" {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return 0, nil
	}

	embeddings := make([][]float32, 0, len(kept))
	for i := 0; i < len(kept); i += s.batchSize {
		end := i + s.batchSize
		if end > len(kept) {
			end = len(kept)
		}
		texts := make([]string, 0, end-i)
		for _, c := range kept[i:end] {
			texts = append(texts, c.Text)
		}
		batch, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed chunks of %s: %w", src.Name, err)
		}
		if len(batch) != len(texts) {
			return 0, fmt.Errorf("embed chunks of %s: got %d embeddings for %d chunks", src.Name, len(batch), len(texts))
		}
		embeddings = append(embeddings, batch...)
	}

	rows := make([]model.VaultChunk, len(kept))
	for i, c := range kept {
		meta := make(map[string]interface{}, len(c.Metadata))
		for k, v := range c.Metadata {
			meta[k] = v
		}
		rows[i] = model.VaultChunk{
			ChunkID:    c.ID,
			Collection: s.collection,
			Source:     c.Source,
			ChunkIndex: c.Index,
			Content:    c.Text,
			Metadata:   meta,
		}
		rows[i].SetEmbedding(embeddings[i])
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.chunks.WithTx(tx).CreateBatch(ctx, rows); err != nil {
			return err
		}
		return s.sources.WithTx(tx).Create(ctx, &model.VaultSource{
			Collection: s.collection,
			Name:       src.Name,
			Digest:     src.Digest,
			Kind:       src.Kind,
			ChunkCount: len(rows),
		})
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreIO, err)
	}

	s.log.Info("chunks stored",
		zap.String("source", src.Name),
		zap.Int("chunks", len(rows)),
		zap.String("collection", s.collection),
	)
	return len(rows), nil
}

// Query returns up to k chunks most similar to text, best first. Equal
// scores keep insertion order. k <= 0 uses the default; k above the
// collection size returns everything. An empty collection returns no
// results without computing an embedding.
func (s *Store) Query(ctx context.Context, text string, k int) ([]Result, error) {
	count, err := s.chunks.CountByCollection(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreIO, err)
	}
	if count == 0 {
		return []Result{}, nil
	}
	if k <= 0 {
		k = s.defaultTopK
	}

	queryVec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.chunks.ListByCollection(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreIO, err)
	}

	results := make([]Result, len(rows))
	for i := range rows {
		results[i] = Result{
			ChunkID:  rows[i].ChunkID,
			Text:     rows[i].Content,
			Source:   rows[i].Source,
			Score:    cosineSimilarity(queryVec, rows[i].EmbeddingVector()),
			Metadata: stringMap(rows[i].Metadata),
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	n, err := s.chunks.CountByCollection(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreIO, err)
	}
	return n, nil
}

// Sources lists the files ingested into the collection, oldest first.
func (s *Store) Sources(ctx context.Context) ([]model.VaultSource, error) {
	list, err := s.sources.ListByCollection(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreIO, err)
	}
	return list, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func stringMap(m map[string]interface{}) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprint(v)
	}
	return out
}
