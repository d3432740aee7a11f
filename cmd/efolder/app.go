package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dharsanguruparan/efolder-express/internal/archive"
	"github.com/dharsanguruparan/efolder-express/internal/config"
	"github.com/dharsanguruparan/efolder-express/internal/database"
	"github.com/dharsanguruparan/efolder-express/internal/doctypes"
	"github.com/dharsanguruparan/efolder-express/internal/encryption"
	"github.com/dharsanguruparan/efolder-express/internal/logging"
	"github.com/dharsanguruparan/efolder-express/internal/records"
	"github.com/dharsanguruparan/efolder-express/internal/repository"
	"github.com/dharsanguruparan/efolder-express/internal/s3storage"
	"github.com/dharsanguruparan/efolder-express/internal/storage"
)

// blobStore is satisfied by both blob backends.
type blobStore interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, location string) ([]byte, error)
	Delete(ctx context.Context, location string) error
}

// app holds the dependencies shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *database.DB
	store    *repository.Store
	blobs    blobStore
	gate     *encryption.Gate
	records  records.Client
	types    *doctypes.Cache
	archiver *archive.Builder
	closers  []func() error
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, types: doctypes.New()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	target := cfg.SQLitePath
	if cfg.DatabaseDriver == config.DriverPostgres {
		target = cfg.DatabaseURL
	}
	a.db, err = database.Open(ctx, cfg.DatabaseDriver, target)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.db.Close)
	if err := database.Migrate(a.db, logger); err != nil {
		return nil, err
	}
	a.store = repository.New(a.db)

	if a.blobs, err = openBlobs(ctx, a); err != nil {
		return nil, err
	}

	a.gate, err = encryption.New(cfg.EncryptionKeys...)
	if err != nil {
		return nil, fmt.Errorf("encryption keys: %w", err)
	}

	if cfg.Demo {
		logger.Warn("demo mode: using the built-in records system")
		a.records = records.DemoClient{}
	} else {
		a.records, err = records.NewCommandClient(records.CommandConfig{
			Path:        cfg.RecordsCommand,
			Args:        cfg.RecordsArgs,
			Dir:         cfg.RecordsDir,
			Concurrency: cfg.Workers,
		})
		if err != nil {
			return nil, err
		}
	}

	a.archiver = archive.New(a.blobs, a.gate, a.types)
	return a, nil
}

func openBlobs(ctx context.Context, a *app) (blobStore, error) {
	switch a.cfg.BlobBackend {
	case config.BlobLocal:
		b, err := storage.OpenLocal(a.cfg.LocalBlobDir)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, b.Close)
		return b, nil
	case config.BlobMemory:
		a.logger.Warn("memory blob backend: document contents are lost on exit")
		b := storage.OpenMemory()
		a.closers = append(a.closers, b.Close)
		return b, nil
	case config.BlobS3:
		s, err := s3storage.New(a.cfg)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", a.cfg.BlobBackend)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
