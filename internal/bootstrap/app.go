package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/ai"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/app"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/cache"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/chunker"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/config"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/pkg/logger"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/platform/database"
	rabbitmqClient "github.com/jonathanjthomas/GDG-RAG-Demo/internal/platform/rabbitmq"
	redisClient "github.com/jonathanjthomas/GDG-RAG-Demo/internal/platform/redis"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/vectorstore"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/worker"
)

// App owns every long-lived client. It is built once per process and
// handed to the HTTP router or the CLI commands.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	DB           *gorm.DB
	Redis        *redis.Client
	MQConn       *amqp.Connection
	Store        *vectorstore.Store
	Sessions     *app.SessionService
	Chat         *app.ChatService
	Ingest       *app.IngestService
	IngestWorker *worker.IngestWorker

	StartedAt time.Time
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	log = logger.OrNop(log)
	a := &App{Config: cfg, Logger: log, StartedAt: time.Now()}

	db, err := database.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DB = db

	llm := ai.NewOpenAICompatibleClient(
		ai.WithTimeout(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second),
		ai.WithEmbedRateLimit(cfg.LLM.EmbedRPS),
	)
	embedder := ai.EmbeddingModel{
		Client: llm,
		Config: ai.EmbeddingConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.EmbeddingModel,
		},
	}
	a.Store = vectorstore.New(db, embedder, cfg.Store.Collection,
		vectorstore.WithBatchSize(cfg.LLM.EmbedBatchSize),
		vectorstore.WithDefaultTopK(cfg.Retrieval.DefaultTopK),
		vectorstore.WithLogger(log),
	)

	sessionTTL := time.Duration(cfg.Auth.SessionTTLMinutes) * time.Minute
	var sessionStore interface {
		app.SessionStore
		app.JobStore
	}
	if cfg.Redis.Enabled {
		client, err := redisClient.New(ctx, cfg.Redis)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Redis = client
		sessionStore = cache.NewRedisSessionCache(client, sessionTTL)
	} else {
		sessionStore = cache.NewMemorySessionCache(sessionTTL)
	}

	a.Sessions = app.NewSessionService(sessionStore, app.SessionDefaults{
		Model: cfg.LLM.ChatModel,
		TopK:  cfg.Retrieval.DefaultTopK,
	}, cfg.LLM.Models, cfg.Retrieval.MaxTopK)

	chat := ai.ChatConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.ChatModel,
		MaxTokens:   cfg.LLM.ChatMaxTokens,
		Temperature: ai.Temp(cfg.LLM.ChatTemperature),
	}
	rewrite := chat
	rewrite.MaxTokens = cfg.LLM.RewriteMaxTokens
	rewrite.Temperature = ai.Temp(cfg.LLM.RewriteTemperature)

	a.Chat = app.NewChatService(
		llm,
		app.NewQueryRewriter(llm, rewrite, log),
		app.NewRetriever(a.Store),
		chat,
		log,
	)

	a.Ingest = app.NewIngestService(a.Store, chunker.New(
		chunker.WithSize(cfg.Chunker.Size),
		chunker.WithOverlap(cfg.Chunker.Overlap),
	), log)

	if cfg.RabbitMQ.Enabled && cfg.Ingest.Async {
		conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.MQConn = conn
		a.Ingest.WithQueue(rabbitmqClient.NewIngestPublisher(conn, cfg.RabbitMQ.IngestQueue), sessionStore)
	}

	log.Info("app initialised",
		zap.String("driver", cfg.Store.Driver),
		zap.String("collection", cfg.Store.Collection),
		zap.String("model", cfg.LLM.ChatModel),
		zap.Bool("redis", a.Redis != nil),
		zap.Bool("async_ingest", a.Ingest.Async()),
	)
	return a, nil
}

// StartWorkers starts the ingest consumer when async ingest is on. Only
// the serving process calls it, so the queue keeps a single writer.
func (a *App) StartWorkers(ctx context.Context) error {
	if a.MQConn == nil || a.IngestWorker != nil {
		return nil
	}
	w := worker.NewIngestWorker(a.MQConn, a.Ingest, a.Config.RabbitMQ.IngestQueue, a.Logger)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start ingest worker failed: %w", err)
	}
	a.IngestWorker = w
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			closeErr = err
		}
	}
	return closeErr
}
