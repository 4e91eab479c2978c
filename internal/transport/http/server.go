package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/bootstrap"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/transport/http/handler"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(app.Logger), middleware.Recovery(app.Logger))
	router.MaxMultipartMemory = int64(app.Config.Ingest.MaxUploadMB) << 20

	secret := app.Config.Auth.SessionSecret
	ttl := time.Duration(app.Config.Auth.SessionTTLMinutes) * time.Minute

	healthHandler := handler.NewHealthHandler(app)
	sessionHandler := handler.NewSessionHandler(app.Sessions, secret, ttl)
	chatHandler := handler.NewChatHandler(app.Sessions, app.Chat)
	documentHandler := handler.NewDocumentHandler(app.Sessions, app.Ingest, app.Store, int64(app.Config.Ingest.MaxUploadMB)<<20)
	jobHandler := handler.NewJobHandler(app.Ingest)

	router.GET("/healthz", healthHandler.Check)

	v1 := router.Group("/api/v1")
	v1.POST("/sessions", sessionHandler.Create)

	authed := v1.Group("")
	authed.Use(middleware.AuthSession(secret))
	authed.GET("/session", sessionHandler.Get)
	authed.PUT("/session/settings", sessionHandler.UpdateSettings)
	authed.DELETE("/session", sessionHandler.Delete)

	authed.POST("/documents", documentHandler.Upload)
	authed.GET("/documents", documentHandler.List)
	authed.GET("/jobs/:id", jobHandler.Get)

	authed.POST("/chat", chatHandler.SendMessage)
	authed.POST("/chat/stream", chatHandler.StreamMessage)

	return router
}
