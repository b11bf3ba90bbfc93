// Package app wires configuration into a ready-to-use importer, staging
// store and HTTP server. The server and the CLI tools share it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/david/opportunity-importer/internal/ai"
	"github.com/david/opportunity-importer/internal/api"
	"github.com/david/opportunity-importer/internal/auth"
	"github.com/david/opportunity-importer/internal/config"
	"github.com/david/opportunity-importer/internal/db"
	"github.com/david/opportunity-importer/internal/events"
	"github.com/david/opportunity-importer/internal/ingest"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Pool     *pgxpool.Pool
	Store    *db.Store
	Importer *ingest.Importer

	closers []func() error
}

// New connects to Postgres (running migrations when enabled) and builds the
// importer with every optional collaborator the configuration turns on.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	pool, err := db.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}
	a.Pool = pool
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	if cfg.Database.Migrate {
		if err := db.ApplyMigrations(ctx, pool, logger); err != nil {
			a.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
	}
	a.Store = db.NewStore(pool)

	importer, err := a.buildImporter(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Importer = importer
	return a, nil
}

func (a *App) buildImporter(ctx context.Context) (*ingest.Importer, error) {
	cfg := a.Config

	reg, err := ingest.LoadRegistry(cfg.Scraper.SitesFile)
	if err != nil {
		return nil, err
	}
	scraper := ingest.NewPageScraper(reg, a.Logger.Named("scraper"))
	scraper.Concurrency = cfg.Scraper.Concurrency
	scraper.MaxPageBytes = cfg.Scraper.MaxPageBytes

	im := &ingest.Importer{
		Scraper: scraper,
		Store:   a.Store,
		Runs:    a.Store,
		Logger:  a.Logger.Named("importer"),
	}

	if cfg.Ollama.Enabled {
		client := ai.NewOllamaClient(cfg.Ollama.Host, cfg.Ollama.EmbedModel, cfg.Ollama.GenModel)
		pages := ingest.NewRateLimitedFetcher(reg.Default.Fetch)
		enhancer := ai.NewEnhancer(client, pages, a.Logger.Named("enhancer"))
		im.Enricher = enhancer

		if cfg.Redis.URL != "" {
			rdb, err := ai.Connect(ctx, cfg.Redis.URL)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, rdb.Close)
			if err := rdb.Ping(ctx).Err(); err != nil {
				a.Logger.Warn("redis unreachable; enhancement cache will miss", zap.Error(err))
			}
			im.Enricher = ai.NewCachedEnhancer(enhancer, rdb, cfg.Redis.TTL(), a.Logger.Named("enhance_cache"))
		}
		if cfg.Ollama.Embeddings {
			im.Embedder = client
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, map[string]string{
			ingest.EventOpportunityStaged: cfg.Kafka.StagedTopic,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		im.Events = pub
	}

	return im, nil
}

// NewServer builds the HTTP API over the app's importer and store.
func (a *App) NewServer() (*api.Server, error) {
	cfg := a.Config
	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, a.Logger)
	if err != nil {
		return nil, err
	}
	admin, err := auth.NewAdminGuard(cfg.Auth.AdminSecret, cfg.Auth.AdminSecretHash, a.Logger)
	if err != nil {
		return nil, err
	}

	return api.NewServer(a.Importer, a.Store, verifier, admin, a.Pool.Ping, a.Logger.Named("api"), api.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		MaxImportURLs:  cfg.Server.MaxImportURLs,
		RequestTimeout: cfg.Server.RequestTimeoutDuration(),
		JobTimeout:     30 * time.Minute,
	}), nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
