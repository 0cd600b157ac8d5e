package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	api "github.com/mind-engage/mindengage-exams/internal/api/http"
	auth "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/cache"
	"github.com/mind-engage/mindengage-exams/internal/config"
	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/logging"
	"github.com/mind-engage/mindengage-exams/internal/metrics"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
	"github.com/mind-engage/mindengage-exams/internal/users"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "examd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		examStore exam.Store
		userStore users.Store
		events    syncx.Log
		ready     func(context.Context) error
	)
	switch cfg.DBDriver {
	case "memory":
		examStore = exam.NewInMemoryStore()
		userStore = users.NewInMemoryStore()
		events = syncx.NewMemoryLog()
		log.Warn("using in-memory storage; data is lost on exit")
	default:
		dbh, err := openDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer dbh.Close()
		examStore = exam.NewSQLStore(dbh)
		userStore = users.NewSQLStore(dbh)
		events = syncx.NewEventRepo(dbh, "")
		ready = dbh.PingContext
	}

	m := metrics.New()
	catalogOpts := []exam.CatalogOption{exam.WithCatalogLogger(log.Named("catalog"))}
	if cfg.RedisAddr != "" {
		rdb, err := cache.Dial(ctx, cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		catalogOpts = append(catalogOpts, exam.WithExamCache(cache.NewExamCache(rdb, cfg.ExamCacheTTL)))
		log.Info("exam cache enabled", zap.String("addr", cfg.RedisAddr))
	}

	userSvc := users.NewService(userStore,
		users.WithAdminSignup(cfg.AllowAdminSignup),
		users.WithLogger(log.Named("users")))
	catalog := exam.NewCatalog(examStore, catalogOpts...)
	lifecycle := exam.NewLifecycle(examStore, catalog, userSvc,
		exam.WithEvents(events),
		exam.WithObserver(m),
		exam.WithLogger(log.Named("lifecycle")),
		exam.WithEligibility(cfg.EnforceEligibility))

	h := api.NewRouter(ctx, api.Deps{
		Catalog:         catalog,
		Lifecycle:       lifecycle,
		Users:           userSvc,
		Auth:            auth.NewAuthService(cfg.HMACSecret, cfg.TokenTTL),
		Events:          events,
		Metrics:         m,
		Log:             log,
		CORSOrigins:     cfg.CORSOrigins,
		LoginRatePerMin: cfg.LoginRatePerMin,
		Ready:           ready,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.HTTPAddr), zap.String("mode", string(cfg.Mode)), zap.String("db", cfg.DBDriver))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	return dbh, nil
}
