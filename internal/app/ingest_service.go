package app

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/chunker"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/loader"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/pkg/logger"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/vectorstore"
)

const (
	StatusIngested = "ingested"
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
	StatusQueued   = "queued"
	StatusRunning  = "running"
)

var ErrJobNotFound = errors.New("ingest job not found")

// DocumentStore persists chunks of one file.
type DocumentStore interface {
	Add(ctx context.Context, src vectorstore.Source, chunks []chunker.Chunk) (int, error)
}

// Upload is one file handed to ingestion.
type Upload struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// FileResult reports what happened to one upload.
type FileResult struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Digest    string `json:"digest"`
	Kind      string `json:"kind,omitempty"`
	Documents int    `json:"documents,omitempty"`
	Chunks    int    `json:"chunks,omitempty"`
	JobID     string `json:"job_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// IngestJob is an upload queued for the background writer.
type IngestJob struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Upload    Upload `json:"upload"`
}

// JobStatus tracks a queued upload.
type JobStatus struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Chunks    int       `json:"chunks"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type IngestPublisher interface {
	PublishIngest(ctx context.Context, job IngestJob) error
}

type JobStore interface {
	SaveJob(ctx context.Context, status JobStatus) error
	// GetJob returns nil, nil for unknown ids.
	GetJob(ctx context.Context, id string) (*JobStatus, error)
}

type IngestService struct {
	store     DocumentStore
	chunker   *chunker.Chunker
	publisher IngestPublisher
	jobs      JobStore
	log       *zap.Logger
}

func NewIngestService(store DocumentStore, ch *chunker.Chunker, log *zap.Logger) *IngestService {
	if ch == nil {
		ch = chunker.New()
	}
	return &IngestService{
		store:   store,
		chunker: ch,
		log:     logger.OrNop(log).Named("ingest"),
	}
}

// WithQueue routes Ingest through publisher instead of writing inline.
func (s *IngestService) WithQueue(publisher IngestPublisher, jobs JobStore) *IngestService {
	s.publisher = publisher
	s.jobs = jobs
	return s
}

func (s *IngestService) Async() bool { return s.publisher != nil }

// Digest is the hex BLAKE2b-256 of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IngestFile loads, chunks and stores one upload synchronously.
func (s *IngestService) IngestFile(ctx context.Context, up Upload) (*FileResult, error) {
	result := &FileResult{
		Name:   up.Name,
		Digest: Digest(up.Data),
		Kind:   loader.KindFor(up.ContentType, up.Name).String(),
	}

	docs, err := loader.Load(up.Data, up.ContentType, up.Name)
	if err != nil {
		return result, err
	}
	result.Documents = len(docs)

	chunks := s.chunker.Split(docs)
	stored, err := s.store.Add(ctx, vectorstore.Source{
		Name:   docs[0].Source,
		Digest: result.Digest,
		Kind:   result.Kind,
	}, chunks)
	if err != nil {
		return result, err
	}
	result.Chunks = stored
	result.Status = StatusIngested

	s.log.Info("file ingested",
		zap.String("name", up.Name),
		zap.String("kind", result.Kind),
		zap.Int("documents", len(docs)),
		zap.Int("chunks", stored),
	)
	return result, nil
}

// Ingest handles a batch of uploads for a session. Files already ingested
// in the session are skipped; one file failing does not stop the others.
func (s *IngestService) Ingest(ctx context.Context, state SessionState, uploads []Upload) (SessionState, []FileResult) {
	next := state.Clone()
	results := make([]FileResult, 0, len(uploads))

	for _, up := range uploads {
		digest := Digest(up.Data)
		if s.duplicate(ctx, &next, digest) {
			results = append(results, FileResult{
				Name:   up.Name,
				Status: StatusSkipped,
				Digest: digest,
				Error:  ErrDuplicateSource.Error(),
			})
			continue
		}

		var (
			res *FileResult
			err error
		)
		if s.Async() {
			res, err = s.enqueue(ctx, state.ID, up)
		} else {
			res, err = s.IngestFile(ctx, up)
		}
		if err != nil {
			s.log.Warn("file ingest failed", zap.String("name", up.Name), zap.Error(err))
			res.Status = StatusFailed
			res.Error = err.Error()
			results = append(results, *res)
			continue
		}

		next.Sources = append(next.Sources, SourceRecord{
			Name:       up.Name,
			Digest:     digest,
			Chunks:     res.Chunks,
			JobID:      res.JobID,
			IngestedAt: time.Now(),
		})
		results = append(results, *res)
	}

	next.UpdatedAt = time.Now()
	return next, results
}

// duplicate reports whether digest was already ingested in state. A queued
// upload whose job failed does not count and is dropped from state.
func (s *IngestService) duplicate(ctx context.Context, state *SessionState, digest string) bool {
	for i, src := range state.Sources {
		if src.Digest != digest {
			continue
		}
		if src.JobID == "" || s.jobs == nil {
			return true
		}
		status, err := s.jobs.GetJob(ctx, src.JobID)
		if err != nil {
			s.log.Warn("load job status failed", zap.String("job", src.JobID), zap.Error(err))
			return true
		}
		if status != nil && status.Status == StatusFailed {
			state.Sources = append(state.Sources[:i], state.Sources[i+1:]...)
			return false
		}
		return true
	}
	return false
}

func (s *IngestService) enqueue(ctx context.Context, sessionID string, up Upload) (*FileResult, error) {
	job := IngestJob{ID: uuid.NewString(), SessionID: sessionID, Upload: up}
	result := &FileResult{
		Name:   up.Name,
		Digest: Digest(up.Data),
		Kind:   loader.KindFor(up.ContentType, up.Name).String(),
		JobID:  job.ID,
	}

	if err := s.jobs.SaveJob(ctx, JobStatus{ID: job.ID, Name: up.Name, Status: StatusQueued, UpdatedAt: time.Now()}); err != nil {
		return result, fmt.Errorf("save job status: %w", err)
	}
	if err := s.publisher.PublishIngest(ctx, job); err != nil {
		return result, fmt.Errorf("enqueue %s: %w", up.Name, err)
	}
	result.Status = StatusQueued
	return result, nil
}

// RunJob ingests a queued upload and records its outcome.
func (s *IngestService) RunJob(ctx context.Context, job IngestJob) error {
	if s.jobs != nil {
		running := JobStatus{ID: job.ID, Name: job.Upload.Name, Status: StatusRunning, UpdatedAt: time.Now()}
		if err := s.jobs.SaveJob(ctx, running); err != nil {
			s.log.Warn("save job status failed", zap.String("job", job.ID), zap.Error(err))
		}
	}

	res, err := s.IngestFile(ctx, job.Upload)
	status := JobStatus{ID: job.ID, Name: job.Upload.Name, UpdatedAt: time.Now()}
	if err != nil {
		status.Status = StatusFailed
		status.Error = err.Error()
	} else {
		status.Status = StatusIngested
		status.Chunks = res.Chunks
	}
	if s.jobs != nil {
		if saveErr := s.jobs.SaveJob(ctx, status); saveErr != nil {
			s.log.Warn("save job status failed", zap.String("job", job.ID), zap.Error(saveErr))
		}
	}
	return err
}

func (s *IngestService) Job(ctx context.Context, id string) (*JobStatus, error) {
	if s.jobs == nil {
		return nil, ErrJobNotFound
	}
	status, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, ErrJobNotFound
	}
	return status, nil
}
