package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/app"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/pkg/jwtutil"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/transport/http/middleware"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/transport/http/response"
)

type SessionHandler struct {
	sessions *app.SessionService
	secret   string
	ttl      time.Duration
}

type UpdateSettingsRequest struct {
	Model string `json:"model"`
	TopK  int    `json:"top_k"`
}

// SessionView is a session as the user sees it.
type SessionView struct {
	ID        string             `json:"id"`
	Model     string             `json:"model"`
	TopK      int                `json:"top_k"`
	Sources   []app.SourceRecord `json:"sources"`
	History   []app.Turn         `json:"history"`
	Models    []string           `json:"models"`
	MaxTopK   int                `json:"max_top_k"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func NewSessionHandler(sessions *app.SessionService, secret string, ttl time.Duration) *SessionHandler {
	return &SessionHandler{sessions: sessions, secret: secret, ttl: ttl}
}

func (h *SessionHandler) view(state app.SessionState) SessionView {
	return SessionView{
		ID:        state.ID,
		Model:     state.Model,
		TopK:      state.TopK,
		Sources:   state.Sources,
		History:   state.Transcript(),
		Models:    h.sessions.Models(),
		MaxTopK:   h.sessions.MaxTopK(),
		CreatedAt: state.CreatedAt,
		UpdatedAt: state.UpdatedAt,
	}
}

func (h *SessionHandler) Create(c *gin.Context) {
	state, err := h.sessions.Create(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create session failed")
		return
	}

	token, err := jwtutil.GenerateToken(h.secret, h.ttl, state.ID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "issue session token failed")
		return
	}

	response.OK(c, gin.H{
		"token":   token,
		"session": h.view(state),
	})
}

func (h *SessionHandler) Get(c *gin.Context) {
	state, unlock, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}
	unlock()
	response.OK(c, h.view(state))
}

func (h *SessionHandler) UpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	state, unlock, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}
	defer unlock()

	next, err := h.sessions.UpdateSettings(state, req.Model, req.TopK)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrUnknownModel):
			response.Error(c, http.StatusBadRequest, response.CodeUnknownModel, err.Error())
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "update settings failed")
		}
		return
	}
	if err := h.sessions.Save(c.Request.Context(), next); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "save session failed")
		return
	}
	response.OK(c, h.view(next))
}

func (h *SessionHandler) Delete(c *gin.Context) {
	id, ok := middleware.SessionID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	unlock := h.sessions.Lock(id)
	defer unlock()

	if err := h.sessions.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete session failed")
		return
	}
	response.OK(c, gin.H{"deleted_session_id": id})
}

// loadSession locks and loads the caller's session. On failure the
// response is already written and ok is false.
func loadSession(c *gin.Context, sessions *app.SessionService) (app.SessionState, func(), bool) {
	id, ok := middleware.SessionID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return app.SessionState{}, nil, false
	}

	unlock := sessions.Lock(id)
	state, err := sessions.Get(c.Request.Context(), id)
	if err != nil {
		unlock()
		switch {
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "load session failed")
		}
		return app.SessionState{}, nil, false
	}
	return state, unlock, true
}
