package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mdedup/internal/ai"
	"github.com/xxxsen/mdedup/internal/config"
	"github.com/xxxsen/mdedup/internal/db"
	"github.com/xxxsen/mdedup/internal/dedup"
	"github.com/xxxsen/mdedup/internal/embedcache"
	"github.com/xxxsen/mdedup/internal/filestore"
	"github.com/xxxsen/mdedup/internal/job"
	"github.com/xxxsen/mdedup/internal/repo"
	"github.com/xxxsen/mdedup/internal/schedule"
	"github.com/xxxsen/mdedup/internal/service"
)

type app struct {
	cfg        *config.Config
	db         *sql.DB
	docs       *repo.DocumentRepo
	cache      *repo.EmbeddingCacheRepo
	signatures *repo.SignatureRepo
	embeddings *service.EmbeddingService
	dedup      *service.DedupService
}

func openApp(configPath string) (*app, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	initLogger(cfg)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
	sqlDB, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	a, err := buildApp(cfg, sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return a, nil
}

func buildApp(cfg *config.Config, sqlDB *sql.DB) (*app, error) {
	docRepo := repo.NewDocumentRepo(sqlDB)
	runRepo := repo.NewDedupRunRepo(sqlDB)
	embeddingRepo := repo.NewEmbeddingRepo(sqlDB)
	cacheRepo := repo.NewEmbeddingCacheRepo(sqlDB)
	signatureRepo := repo.NewSignatureRepo(sqlDB)

	embedder, err := ai.BuildEmbedder(cfg.Embedding.Providers)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	embedder = embedcache.WrapLRU(embedder, cfg.Embedding.LRUSize, time.Duration(cfg.Embedding.LRUTTLSeconds)*time.Second)
	if cfg.Embedding.DBCache {
		embedder = embedcache.WrapDB(embedder, cacheRepo)
	}
	embeddingService := service.NewEmbeddingService(embedder, embeddingRepo, cfg.Embedding)

	reports, err := filestore.New(cfg.ReportStore)
	if err != nil {
		return nil, fmt.Errorf("init report store: %w", err)
	}
	dedupService, err := service.NewDedupService(cfg.Dedup, service.DedupDeps{
		Docs:       docRepo,
		Runs:       runRepo,
		Embeddings: service.NewRetryingEmbeddings(embeddingService, service.RetryPolicyFromConfig(cfg.Retry), cfg.Embedding.FetchConcurrency),
		Signatures: service.NewSignatureCache(cfg.Dedup, signatureRepo),
		Reports:    reports,
	})
	if err != nil {
		return nil, fmt.Errorf("init dedup service: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("dedup service ready",
		zap.String("dedup", cfg.Dedup.String()),
		zap.Bool("embedding_enabled", embeddingService.Enabled()),
		zap.String("report_store", cfg.ReportStore.Type),
	)
	return &app{
		cfg:        cfg,
		db:         sqlDB,
		docs:       docRepo,
		cache:      cacheRepo,
		signatures: signatureRepo,
		embeddings: embeddingService,
		dedup:      dedupService,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

type scheduledJob struct {
	job  schedule.Job
	spec string
}

// scheduler registers every job with a non-empty spec.
func (a *app) scheduler() (*schedule.CronScheduler, error) {
	sched := schedule.NewCronScheduler()
	jobs := a.cfg.Jobs
	fingerprint := dedup.SketchFingerprint(a.cfg.Dedup)
	items := []scheduledJob{
		{job.NewDedupBatchJob(a.docs, a.dedup), jobs.DedupBatchSpec},
		{job.NewEmbeddingCacheCleanupJob(a.cache, a.signatures, fingerprint, jobs.CacheMaxAgeDays), jobs.CacheCleanupSpec},
	}
	if a.embeddings.Enabled() {
		items = append(items, scheduledJob{job.NewEmbeddingSyncJob(a.embeddings, jobs.EmbeddingSyncDelaySeconds), jobs.EmbeddingSyncSpec})
	}
	for _, item := range items {
		if item.spec == "" {
			continue
		}
		if err := sched.AddJob(item.job, item.spec); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", item.job.Name(), err)
		}
	}
	return sched, nil
}
