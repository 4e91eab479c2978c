package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/ai"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/app"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/transport/http/response"
)

type ChatHandler struct {
	sessions *app.SessionService
	chat     *app.ChatService
}

type SendMessageRequest struct {
	Query string `json:"query" binding:"required"`
}

func NewChatHandler(sessions *app.SessionService, chat *app.ChatService) *ChatHandler {
	return &ChatHandler{sessions: sessions, chat: chat}
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	state, unlock, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}
	defer unlock()

	next, result, err := h.chat.Turn(c.Request.Context(), state, req.Query)
	if err != nil {
		writeTurnError(c, err)
		return
	}
	if err := h.sessions.Save(c.Request.Context(), next); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "save session failed")
		return
	}

	response.OK(c, gin.H{
		"reply":           result.Reply,
		"rewritten_query": result.RewrittenQuery,
		"context":         result.Context,
		"history":         next.Transcript(),
	})
}

// StreamMessage answers over server-sent events: one data event per delta,
// then a done event with the full reply or an error event.
func (h *ChatHandler) StreamMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	state, unlock, ok := loadSession(c, h.sessions)
	if !ok {
		return
	}
	defer unlock()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	next, result, err := h.chat.StreamTurn(c.Request.Context(), state, req.Query, func(chunk string) error {
		if _, writeErr := c.Writer.Write([]byte("data: " + sanitizeSSE(chunk) + "\n\n")); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if _, writeErr := c.Writer.Write([]byte(fmt.Sprintf("event: error\ndata: %s\n\n", sanitizeSSE(err.Error())))); writeErr == nil {
			flusher.Flush()
		}
		return
	}
	if err := h.sessions.Save(c.Request.Context(), next); err != nil {
		if _, writeErr := c.Writer.Write([]byte("event: error\ndata: save session failed\n\n")); writeErr == nil {
			flusher.Flush()
		}
		return
	}

	if _, writeErr := c.Writer.Write([]byte("event: done\ndata: " + sanitizeSSE(result.Reply) + "\n\n")); writeErr == nil {
		flusher.Flush()
	}
}

func writeTurnError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrQueryEmpty):
		response.Error(c, http.StatusBadRequest, response.CodeQueryEmpty, err.Error())
	case errors.Is(err, ai.ErrCompletionService):
		response.Error(c, http.StatusBadGateway, response.CodeBadGateway, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "chat failed")
	}
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
