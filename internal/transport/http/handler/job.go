package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/app"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/transport/http/response"
)

type JobHandler struct {
	ingest *app.IngestService
}

func NewJobHandler(ingest *app.IngestService) *JobHandler {
	return &JobHandler{ingest: ingest}
}

func (h *JobHandler) Get(c *gin.Context) {
	status, err := h.ingest.Job(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrJobNotFound):
			response.Error(c, http.StatusNotFound, response.CodeJobNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get job failed")
		}
		return
	}
	response.OK(c, status)
}
