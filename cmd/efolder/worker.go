package main

import (
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/efolder-express/internal/logging"
	"github.com/dharsanguruparan/efolder-express/internal/orchestrator"
	"github.com/dharsanguruparan/efolder-express/internal/queue"
	"github.com/dharsanguruparan/efolder-express/internal/worker"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Execute download tasks queued in Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			client := asynq.NewClient(redisOpt(cfg))
			defer client.Close()
			inspector := asynq.NewInspector(redisOpt(cfg))
			defer inspector.Close()
			orch := orchestrator.New(a.store, a.blobs, a.records, a.gate,
				queue.NewAsynqDispatcher(client, inspector, ""), logging.NewEvents(logger))

			srv := worker.Server(redisOpt(cfg), cfg.Workers, "", logger.With(slog.String(logging.FieldComponent, "asynq")))
			if err := srv.Start(worker.NewProcessor(orch, logger).Handler()); err != nil {
				return fmt.Errorf("start worker: %w", err)
			}
			logger.Info("worker started",
				slog.String("redis", cfg.RedisAddr),
				slog.Int("concurrency", cfg.Workers))
			<-ctx.Done()
			srv.Shutdown()
			return nil
		},
	}
}
