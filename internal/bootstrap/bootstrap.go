package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/ai-ops-console/internal/config"
	"github.com/kirillkom/ai-ops-console/internal/core/ports"
	"github.com/kirillkom/ai-ops-console/internal/core/usecase"
	"github.com/kirillkom/ai-ops-console/internal/infrastructure/catalog"
	"github.com/kirillkom/ai-ops-console/internal/infrastructure/inspector"
	"github.com/kirillkom/ai-ops-console/internal/infrastructure/queue/nats"
	"github.com/kirillkom/ai-ops-console/internal/infrastructure/random"
	"github.com/kirillkom/ai-ops-console/internal/infrastructure/repository/memory"
	"github.com/kirillkom/ai-ops-console/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/ai-ops-console/internal/infrastructure/resilience"
	"github.com/kirillkom/ai-ops-console/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/ai-ops-console/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Registry *prometheus.Registry
	Metrics  *metrics.PipelineMetrics

	// Queue is nil unless QUEUE_ENABLED is set.
	Queue     ports.MessageQueue
	Documents ports.DocumentReader
	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor
	ReviewUC  ports.DocumentReviewer
	Audit     ports.AuditReader
	Pipeline  ports.PipelineTracker
	CatalogUC ports.CatalogService

	closeFn func()
}

// New wires one process. service labels its metrics (api, worker, mcp).
func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var (
		repo    ports.DocumentRepository
		audit   ports.AuditLog
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	registry := metrics.NewRegistry()
	pipelineMetrics := metrics.NewPipelineMetrics(service, registry)

	policy := resilience.DefaultPolicy()
	policy.MaxAttempts = cfg.RetryMaxAttempts
	policy.Breaker.Enabled = cfg.BreakerEnabled
	executor := resilience.NewExecutor(policy, resilience.WithObserver(pipelineMetrics))

	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := openPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { _ = db.Close() })
		repo = postgres.NewDocumentRepository(db, executor)
		audit = postgres.NewAuditRepository(db, executor)
	default:
		repo = memory.NewDocumentRepository()
		audit = memory.NewAuditLog()
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	seed, err := catalog.LoadFile(cfg.CatalogPath, time.Now())
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	var queue *nats.Queue
	if cfg.QueueEnabled {
		queue, err = nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		closers = append(closers, queue.Close)
	}

	rng := random.New(cfg.RandomSeed)
	extractor := usecase.NewFieldExtractor(rng, time.Now, cfg.ConfidenceVariance)
	runner := usecase.NewStageRunner(rng, usecase.StageRunnerOptions{
		MinDelay: cfg.StageMinDelay,
		MaxDelay: cfg.StageMaxDelay,
		History:  cfg.PipelineRunHistory,
		Observer: pipelineMetrics,
	})
	documents := usecase.NewDocumentRegistry(repo, audit, usecase.RegistryOptions{
		PendingIncludesRejected: cfg.PendingIncludesRejected,
	})

	// A nil *nats.Queue must not reach the use case as a non-nil interface.
	var messageQueue ports.MessageQueue
	if queue != nil {
		messageQueue = queue
	}
	ingestUC := usecase.NewIngestDocumentUseCase(
		documents,
		repo,
		audit,
		storage,
		messageQueue,
		runner,
		extractor,
		inspector.New(storage, cfg.MaxUploadBytes),
		usecase.IngestOptions{
			DefaultModel:    cfg.DefaultModel,
			DefaultBaseline: cfg.ConfidenceBaseline,
		},
	)
	reviewUC := usecase.NewReviewUseCase(documents, audit, pipelineMetrics, usecase.ReviewOptions{
		ApprovalThreshold: cfg.ApprovalThreshold,
		DefaultReviewer:   cfg.DefaultReviewer,
	})
	catalogUC := usecase.NewCatalogUseCase(memory.NewCatalogRepository(seed.Connectors, seed.Playbooks), time.Now)

	slog.Info("app_wired",
		"service", service,
		"store_backend", cfg.StoreBackend,
		"queue_enabled", cfg.QueueEnabled,
		"connectors", len(seed.Connectors),
		"playbooks", len(seed.Playbooks),
	)

	return &App{
		Config:   cfg,
		Registry: registry,
		Metrics:  pipelineMetrics,

		Queue:     messageQueue,
		Documents: documents,
		IngestUC:  ingestUC,
		ProcessUC: ingestUC,
		ReviewUC:  reviewUC,
		Audit:     audit,
		Pipeline:  runner,
		CatalogUC: catalogUC,

		closeFn: closeAll,
	}, nil
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := postgres.OpenDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
