// Package worker runs download tasks delivered through Redis by asynq.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/efolder-express/internal/metrics"
	"github.com/dharsanguruparan/efolder-express/internal/queue"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	handler queue.Handler
	logger  *slog.Logger
}

// NewProcessor constructs a worker processor that forwards tasks to h.
func NewProcessor(h queue.Handler, logger *slog.Logger) *Processor {
	return &Processor{handler: h, logger: logger}
}

// Handler registers both download task types.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.FetchManifestTask, p.handle)
	mux.HandleFunc(queue.FetchDocumentTask, p.handle)
	return mux
}

// handle never returns the task's error. Tasks are single attempt; whatever
// they leave pending is picked up by recovery on the next start.
func (p *Processor) handle(ctx context.Context, task *asynq.Task) error {
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			p.logger.Error("task panicked",
				slog.String("task", task.Type()),
				slog.Any("panic", r))
		}
		metrics.TasksProcessed.WithLabelValues(task.Type(), outcome).Inc()
	}()
	if err := p.handler.ProcessTask(ctx, queue.Task{Type: task.Type(), Payload: task.Payload()}); err != nil {
		outcome = "error"
		p.logger.Error("task failed",
			slog.String("task", task.Type()),
			slog.String("error", err.Error()))
	}
	return nil
}

// Server builds the asynq server that runs the processor with the given
// concurrency.
func Server(redis asynq.RedisClientOpt, concurrency int, queueName string, logger *slog.Logger) *asynq.Server {
	if queueName == "" {
		queueName = "default"
	}
	return asynq.NewServer(redis, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queueName: 1},
		Logger:      asynqLogger{logger: logger},
	})
}

// asynqLogger adapts slog to asynq's logger interface.
type asynqLogger struct {
	logger *slog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
