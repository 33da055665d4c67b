// Package app wires the configured components together for the server and
// the command line tool.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/termsheet-validation/backend/internal/cache/redis"
	"github.com/termsheet-validation/backend/internal/classification"
	"github.com/termsheet-validation/backend/internal/extraction"
	"github.com/termsheet-validation/backend/internal/ingestion"
	"github.com/termsheet-validation/backend/internal/reference"
	"github.com/termsheet-validation/backend/internal/schema"
	"github.com/termsheet-validation/backend/internal/storage/memory"
	"github.com/termsheet-validation/backend/internal/storage/postgres"
	"github.com/termsheet-validation/backend/internal/storage/sqlite"
	"github.com/termsheet-validation/backend/internal/validation"
	"github.com/termsheet-validation/backend/internal/versioning"
	"github.com/termsheet-validation/backend/pkg/config"
	"github.com/termsheet-validation/backend/pkg/logger"
)

// Store is a trade history that also keeps validation runs.
type Store interface {
	versioning.Store
	validation.RunRecorder
}

type App struct {
	Store      Store
	Catalog    *schema.Catalog
	Extractor  *extraction.Extractor
	Classifier *classification.Classifier
	Processor  *ingestion.Processor
	Reference  *reference.Store
	Validator  *validation.Validator
	Cache      *redis.Client

	pings   []func(context.Context) error
	closers []func()
}

// New opens storage and the optional cache and builds the pipeline on top.
// Close releases whatever was opened, also after a partial failure.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}
	if err := a.build(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config) error {
	if err := a.openStore(ctx, cfg.Storage); err != nil {
		return err
	}

	a.Catalog = schema.Default()
	sections := a.Catalog.Sections()
	if cfg.Extraction.TemplatePath != "" {
		loaded, err := schema.LoadSections(cfg.Extraction.TemplatePath)
		if err != nil {
			return fmt.Errorf("failed to load extraction template: %w", err)
		}
		sections = loaded
	}

	var err error
	a.Extractor, err = extraction.New(sections, extraction.WithMaxFileSize(cfg.Extraction.MaxFileSize))
	if err != nil {
		return fmt.Errorf("failed to create extractor: %w", err)
	}
	a.Classifier = classification.New(a.Catalog)

	var opts []ingestion.Option
	if cfg.Redis.Enabled {
		a.Cache, err = redis.NewClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB,
			time.Duration(cfg.Redis.ReportTTLSec)*time.Second)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { a.Cache.Close() })
		a.pings = append(a.pings, a.Cache.Ping)
		opts = append(opts, ingestion.WithCache(a.Cache))
	}
	a.Processor = ingestion.NewProcessor(a.Extractor, versioning.NewService(a.Store), a.Classifier, opts...)

	source, err := referenceSource(cfg.Reference)
	if err != nil {
		return err
	}
	a.Reference = reference.NewStore(source, cfg.Reference.Tables, time.Duration(cfg.Reference.CacheTTLSec)*time.Second)
	a.Validator = validation.New(a.Reference,
		validation.WithFXTolerance(cfg.Validation.FXTolerance),
		validation.WithRecorder(a.Store),
	)

	logger.Info("Pipeline initialized",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("reference", cfg.Reference.Path),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Int("sections", len(sections)),
	)
	return nil
}

func (a *App) openStore(ctx context.Context, cfg config.StorageConfig) error {
	switch cfg.Driver {
	case "memory":
		a.Store = memory.NewStore()
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pool.Close)
		if err := pool.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate postgres: %w", err)
		}
		a.Store = postgres.NewStore(pool)
		a.pings = append(a.pings, pool.Ping)
	case "sqlite":
		client, err := sqlite.NewClient(cfg.SQLite.Path)
		if err != nil {
			return fmt.Errorf("failed to create sqlite client: %w", err)
		}
		a.closers = append(a.closers, func() { client.Close() })
		if err := client.InitSchema(); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		a.Store = client
		a.pings = append(a.pings, client.Ping)
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	return nil
}

func referenceSource(cfg config.ReferenceConfig) (reference.Source, error) {
	switch cfg.Format {
	case "xlsx":
		return &reference.WorkbookSource{Path: cfg.Path}, nil
	case "csv":
		return &reference.CSVSource{Dir: cfg.Path}, nil
	default:
		return nil, fmt.Errorf("unknown reference format %q", cfg.Format)
	}
}

// Ready pings storage and the cache.
func (a *App) Ready(ctx context.Context) error {
	var errs []error
	for _, ping := range a.pings {
		if err := ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
