package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/voyagen/streamvault/internal/config"
	"github.com/voyagen/streamvault/internal/fetcher"
	"github.com/voyagen/streamvault/internal/queue"
	"github.com/voyagen/streamvault/internal/scheduler"
	"github.com/voyagen/streamvault/internal/server"
	"github.com/voyagen/streamvault/internal/store"
	"github.com/voyagen/streamvault/internal/syncer"
	"github.com/voyagen/streamvault/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "Optional config file path (YAML); else use env DATABASE_URL")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	ctx := context.Background()

	// Run migrations.
	absMigrations, err := filepath.Abs("migrations")
	if err != nil {
		absMigrations = "migrations"
	}
	if _, err := os.Stat(absMigrations); err != nil {
		if exe, e := os.Executable(); e == nil {
			absMigrations = filepath.Join(filepath.Dir(exe), "migrations")
		}
	}
	if err := store.EnsureDatabase(cfg.DatabaseURL); err != nil {
		log.WithError(err).Fatal("database unreachable")
	}
	if err := store.RunMigrations(cfg.DatabaseURL, "file://"+absMigrations); err != nil {
		log.WithError(err).Fatal("migrate")
	}

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db")
	}
	defer pg.Close()

	rds, err := queue.NewRedis(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Fatal("redis")
	}
	defer rds.Close()
	if err := rds.Ping(ctx); err != nil {
		log.WithError(err).Fatal("redis ping")
	}
	log.Info("redis connected")

	q := queue.New(rds, queue.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
	})

	fetch := fetcher.New(cfg.Timeout, cfg.UserAgent)
	deny := syncer.NewDenylists(cfg.ExcludeLive, cfg.ExcludeVOD, cfg.ExcludeSeries)
	rec := syncer.NewReconciler(pg, syncer.DefaultBatchSize, log)
	orch := syncer.NewOrchestrator(pg, fetch, rec, deny, log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := worker.NewPool(q, rds, orch, cfg.WorkerConcurrency, log)
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		pool.Run(ctx)
	}()

	sched := scheduler.New(pg, q, log)
	if err := sched.Start(ctx, cfg.SyncSchedule); err != nil {
		log.WithError(err).Fatal("scheduler")
	}
	defer sched.Stop()

	srv := server.New(pg, q, rds, cfg, log)
	if err := srv.ListenAndServe(ctx); err != nil {
		log.WithError(err).Fatal("server")
	}

	// Let in-flight jobs settle before exiting.
	select {
	case <-poolDone:
	case <-time.After(30 * time.Second):
		log.Warn("workers did not drain in time")
	}
}
