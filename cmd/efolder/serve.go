package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/efolder-express/internal/config"
	"github.com/dharsanguruparan/efolder-express/internal/doctypes"
	"github.com/dharsanguruparan/efolder-express/internal/logging"
	"github.com/dharsanguruparan/efolder-express/internal/orchestrator"
	"github.com/dharsanguruparan/efolder-express/internal/processing"
	"github.com/dharsanguruparan/efolder-express/internal/queue"
	"github.com/dharsanguruparan/efolder-express/internal/server"
)

func newServeCmd() *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web service and, with the in-process dispatcher, its workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Address = address
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVar(&address, "addr", "", "Listen address (overrides EFOLDER_ADDRESS)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var (
		dispatcher queue.Dispatcher
		pool       *processing.Pool
	)
	switch cfg.Dispatcher {
	case config.DispatcherAsynq:
		client := asynq.NewClient(redisOpt(cfg))
		defer client.Close()
		inspector := asynq.NewInspector(redisOpt(cfg))
		defer inspector.Close()
		dispatcher = queue.NewAsynqDispatcher(client, inspector, "")
		logger.Info("dispatching to redis; run `efolder worker` to execute tasks",
			slog.String("redis", cfg.RedisAddr))
	default:
		pool = processing.New(cfg.Workers, cfg.QueueCapacity, logger.With(slog.String(logging.FieldComponent, "pool")))
		dispatcher = pool
	}

	orch := orchestrator.New(a.store, a.blobs, a.records, a.gate, dispatcher, logging.NewEvents(logger))
	srv := server.New(server.Options{
		Address:       cfg.Address,
		ArchiveDir:    cfg.ArchiveDir,
		ShutdownGrace: cfg.ShutdownGrace,
	}, server.Deps{
		Starter:  orch,
		Reader:   a.store,
		Archiver: a.archiver,
		Ready:    a.types.Ready,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	if pool != nil {
		pool.Start(gctx, orch)
		defer pool.Close()
	}
	g.Go(func() error {
		return doctypes.Populate(gctx, a.types, a.records, logger)
	})
	g.Go(func() error {
		manifests, documents, err := orch.RecoverPendingWork(gctx)
		if err != nil {
			return fmt.Errorf("recover pending work: %w", err)
		}
		logger.Info("pending work recovered",
			slog.Int("manifests", manifests),
			slog.Int("documents", documents))
		return nil
	})
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	return g.Wait()
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}
