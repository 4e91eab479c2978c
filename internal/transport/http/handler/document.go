package handler

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/app"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/model"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/transport/http/response"
)

// SourceLister lists what the collection holds.
type SourceLister interface {
	Sources(ctx context.Context) ([]model.VaultSource, error)
	Count(ctx context.Context) (int64, error)
}

type DocumentHandler struct {
	sessions    *app.SessionService
	ingest      *app.IngestService
	sources     SourceLister
	maxFileSize int64
}

func NewDocumentHandler(sessions *app.SessionService, ingest *app.IngestService, sources SourceLister, maxFileSize int64) *DocumentHandler {
	return &DocumentHandler{
		sessions:    sessions,
		ingest:      ingest,
		sources:     sources,
		maxFileSize: maxFileSize,
	}
}

// Upload accepts a multipart form with one or more "file" parts. Each file
// gets its own result; a bad file never fails the request.
func (h *DocumentHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid multipart form")
		return
	}
	files := form.File["file"]
	if len(files) == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeNoFiles, "no file uploaded")
		return
	}

	uploads := make([]app.Upload, 0, len(files))
	var rejected []app.FileResult
	for _, fh := range files {
		up, err := h.readUpload(fh)
		if err != nil {
			rejected = append(rejected, app.FileResult{Name: fh.Filename, Status: app.StatusFailed, Error: err.Error()})
			continue
		}
		uploads = append(uploads, up)
	}

	state, unlock, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}
	defer unlock()

	next, results := h.ingest.Ingest(c.Request.Context(), state, uploads)
	if err := h.sessions.Save(c.Request.Context(), next); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "save session failed")
		return
	}

	response.OK(c, gin.H{
		"async":   h.ingest.Async(),
		"files":   append(results, rejected...),
		"sources": next.Sources,
	})
}

func (h *DocumentHandler) readUpload(fh *multipart.FileHeader) (app.Upload, error) {
	if h.maxFileSize > 0 && fh.Size > h.maxFileSize {
		return app.Upload{}, fmt.Errorf("%s exceeds %d bytes", fh.Filename, h.maxFileSize)
	}
	f, err := fh.Open()
	if err != nil {
		return app.Upload{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return app.Upload{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return app.Upload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (h *DocumentHandler) List(c *gin.Context) {
	sources, err := h.sources.Sources(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		return
	}
	count, err := h.sources.Count(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "count chunks failed")
		return
	}
	response.OK(c, gin.H{
		"sources": sources,
		"chunks":  count,
	})
}
