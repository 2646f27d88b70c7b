package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"pagegraph/internal/config"
	"pagegraph/internal/crawler"
	"pagegraph/internal/embed"
	"pagegraph/internal/indexer"
	"pagegraph/internal/jobs"
	"pagegraph/internal/migrate"
	"pagegraph/internal/scraper"
	"pagegraph/internal/store"
)

const shutdownGrace = 30 * time.Second

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	// Run migrations on a short-lived connection
	if err := migrate.Run(cfg.Database.DSN); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	// Create a shared *sql.DB with pooling for the Store
	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db failed: %v", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	st := store.New(db)
	fetcher := scraper.NewFetcher(
		time.Duration(cfg.Crawler.FetchTimeoutMs)*time.Millisecond,
		cfg.Crawler.UserAgent)
	embedClient := embed.NewClient(cfg.Embeddings.BaseURL, cfg.Embeddings.APIKey, cfg.Embeddings.Model)
	ix := indexer.New(st, embedClient, fetcher, logger)
	engine := crawler.New(st, fetcher, ix,
		time.Duration(cfg.Crawler.PageDelayMs)*time.Millisecond, logger)

	sched := jobs.NewScheduler(st, engine,
		cfg.Worker.MaxConcurrentJobs,
		time.Duration(cfg.Worker.PollIntervalMs)*time.Millisecond,
		logger)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listener := jobs.NewListener(cfg.Database.DSN, sched, logger)
	go listener.Run(rootCtx)

	sched.Start(rootCtx)
	logger.Info("worker started",
		"max_concurrent_jobs", cfg.Worker.MaxConcurrentJobs,
		"poll_interval_ms", cfg.Worker.PollIntervalMs)

	<-rootCtx.Done()
	logger.Info("shutting down")
	sched.Stop(shutdownGrace)
	db.Close()
}
