package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/app"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/loader"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/pkg/logger"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/platform/rabbitmq"
)

// JobRunner executes one queued upload.
type JobRunner interface {
	RunJob(ctx context.Context, job app.IngestJob) error
}

// IngestWorker is the single consumer of the ingest queue. Prefetch is one,
// so at most one upload is written to the store at a time.
type IngestWorker struct {
	conn      *amqp.Connection
	runner    JobRunner
	queueName string
	log       *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, runner JobRunner, queueName string, log *zap.Logger) *IngestWorker {
	return &IngestWorker{
		conn:      conn,
		runner:    runner,
		queueName: queueName,
		log:       logger.OrNop(log).Named("ingest-worker"),
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		true,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	w.log.Info("ingest worker started", zap.String("queue", w.queueName))
	return nil
}

func (w *IngestWorker) handle(ctx context.Context, d amqp.Delivery) {
	ack, requeue := w.process(ctx, d.Body)
	if ack {
		_ = d.Ack(false)
		return
	}
	_ = d.Nack(false, requeue)
}

// process returns whether the delivery is done and, if not, whether it
// is worth another attempt.
func (w *IngestWorker) process(ctx context.Context, body []byte) (ack bool, requeue bool) {
	var job app.IngestJob
	if err := json.Unmarshal(body, &job); err != nil {
		w.log.Error("decode ingest job failed", zap.Error(err))
		return false, false
	}

	if err := w.runner.RunJob(ctx, job); err != nil {
		if ctx.Err() != nil {
			return false, true
		}
		w.log.Warn("ingest job failed",
			zap.String("job", job.ID),
			zap.String("name", job.Upload.Name),
			zap.Error(err),
		)
		// bad input will never succeed; the status already says failed
		if errors.Is(err, loader.ErrLoad) {
			return true, false
		}
		return false, false
	}
	return true, false
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
