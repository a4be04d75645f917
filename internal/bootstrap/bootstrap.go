package bootstrap

import (
	"context"
	"fmt"

	"github.com/finsheet-io/finsheet/internal/config"
	"github.com/finsheet-io/finsheet/internal/core/domain"
	"github.com/finsheet-io/finsheet/internal/core/ports"
	"github.com/finsheet-io/finsheet/internal/core/usecase"
	"github.com/finsheet-io/finsheet/internal/infrastructure/extractor/pdftext"
	"github.com/finsheet-io/finsheet/internal/infrastructure/llm/gemini"
	"github.com/finsheet-io/finsheet/internal/infrastructure/queue/nats"
	"github.com/finsheet-io/finsheet/internal/infrastructure/repository/postgres"
	"github.com/finsheet-io/finsheet/internal/infrastructure/resilience"
	"github.com/finsheet-io/finsheet/internal/infrastructure/storage/localfs"
)

type App struct {
	Config  config.Config
	Profile domain.Profile

	Queue     ports.RunQueue
	Repo      ports.RunRepository
	Storage   ports.ObjectStorage
	ExtractUC ports.BatchExtractor
	RunUC     ports.RunProcessor

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewRunRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
	})
	if err != nil {
		return nil, fmt.Errorf("init run queue: %w", err)
	}

	profile := domain.ParseProfile(cfg.ExtractionProfile)
	textExtractor := pdftext.New()
	llm := gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel, profile)

	extractUC := usecase.NewExtractBatchUseCase(
		textExtractor,
		llm,
		profile,
		cfg.MaxUploadBytes,
		cfg.CandidateLineLimit,
	)
	runUC := usecase.NewProcessRunUseCase(repo, storage, queue, extractUC, profile)

	return &App{
		Config:  cfg,
		Profile: profile,

		Queue:     queue,
		Repo:      repo,
		Storage:   storage,
		ExtractUC: extractUC,
		RunUC:     runUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
