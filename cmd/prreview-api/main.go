package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"prreview/internal/analyzer"
	"prreview/internal/config"
	"prreview/internal/github"
	server "prreview/internal/http"
	"prreview/internal/jobs"
	"prreview/internal/llm"
	"prreview/internal/migrate"
	"prreview/internal/pipeline"
	"prreview/internal/queue"
	"prreview/internal/store"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	role := flag.String("role", "all", "process role: api|worker|all")
	flag.Parse()

	switch *role {
	case "api", "worker", "all":
	default:
		log.Fatalf("invalid role: %s (expected api|worker|all)", *role)
	}

	cfg := config.Load(*configPath)

	// Set up logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	if *role != "all" && (cfg.Store.Driver == "memory" || cfg.Queue.Driver == "memory") {
		log.Fatalf("role %s needs shared store and queue drivers; memory only works with -role all", *role)
	}

	var rdb redis.UniversalClient
	if cfg.Store.Driver == "redis" || cfg.Queue.Driver == "redis" || cfg.RateLimit.PerMinute > 0 {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("invalid redis url: %v", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	st, closeStore := openStore(cfg, rdb)
	defer closeStore()

	var q queue.Queue
	switch cfg.Queue.Driver {
	case "redis":
		q = queue.NewRedis(rdb, cfg.Queue.Key)
	default:
		q = queue.NewMemory(cfg.Queue.Size)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if *role == "worker" || *role == "all" {
		runner := newRunner(cfg, st, q, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			runner.Start(ctx)
		}()
	}

	if *role == "api" || *role == "all" {
		s := server.NewServer(cfg, server.Deps{Store: st, Queue: q, Redis: rdb}, logger)
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown failed", "error", err)
			}
		}()
		logger.Info("listening", "host", cfg.Server.Host, "port", cfg.Server.Port, "role", *role)
		if err := s.Listen(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	}

	<-ctx.Done()
	// Let claimed jobs reach a terminal state before exiting.
	wg.Wait()
	logger.Info("shutdown complete")
}

func openStore(cfg *config.Config, rdb redis.UniversalClient) (store.JobStore, func()) {
	var ttl time.Duration
	if cfg.Retention.Enabled && cfg.Retention.JobTTLHours > 0 {
		ttl = time.Duration(cfg.Retention.JobTTLHours) * time.Hour
	}

	switch cfg.Store.Driver {
	case "postgres":
		// Run migrations on a short-lived connection
		if err := migrate.Run(cfg.Database.DSN); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}

		db, err := sql.Open("pgx", cfg.Database.DSN)
		if err != nil {
			log.Fatalf("open db failed: %v", err)
		}
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		return store.NewPostgres(db), func() { _ = db.Close() }
	case "memory":
		return store.NewMemory(), func() {}
	default:
		return store.NewRedis(rdb, cfg.Store.KeyPrefix, ttl), func() {}
	}
}

func newRunner(cfg *config.Config, st store.JobStore, q queue.Queue, logger *slog.Logger) *jobs.Runner {
	client, provider, model, err := llm.NewClientFromConfig(cfg)
	if err != nil {
		log.Fatalf("worker needs an llm provider: %v", err)
	}

	an := analyzer.New(client, string(provider), model, cfg.LLM.MaxTokens)
	orch := pipeline.New(st, github.NewClient(cfg.GitHub), an, logger, cfg.Worker.MaxConcurrentFilesPerJob)
	return jobs.NewRunner(cfg, q, st, orch, logger)
}
