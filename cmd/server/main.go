// Command server runs the share allocation ledger. Storage is selected by
// configuration: with DATABASE_URL set the ledger runs on postgres, without
// it everything lives in process memory (useful for development and tests).
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"shareledger/internal/audit"
	audithandler "shareledger/internal/audit/handler"
	"shareledger/internal/audit/publisher"
	auditmem "shareledger/internal/audit/store/memory"
	auditpg "shareledger/internal/audit/store/postgres"
	"shareledger/internal/owners"
	"shareledger/internal/platform/config"
	"shareledger/internal/platform/httpserver"
	"shareledger/internal/platform/logger"
	"shareledger/internal/platform/middleware"
	platformredis "shareledger/internal/platform/redis"
	"shareledger/internal/readmodel"
	"shareledger/internal/shares/handler"
	"shareledger/internal/shares/metrics"
	"shareledger/internal/shares/service"
	offerstore "shareledger/internal/shares/store/offer"
	recordstore "shareledger/internal/shares/store/record"
	"shareledger/migrations"
	"shareledger/pkg/platform/tx"
)

func main() {
	log := logger.New()
	if err := run(log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

type backend struct {
	offers  service.OfferStore
	records service.RecordStore
	dir     owners.Directory
	trail   audit.Store
	runner  tx.Runner
	db      *sql.DB
}

func buildBackend(ctx context.Context, cfg config.Server, log *slog.Logger) (*backend, error) {
	if cfg.DatabaseURL == "" {
		log.Info("storage backend", "kind", "memory")
		return &backend{
			offers:  offerstore.NewInMemory(),
			records: recordstore.NewInMemory(),
			dir:     owners.NewInMemory(),
			trail:   auditmem.New(),
			runner:  tx.NewKeyedMutexRunner(),
		}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	if err := migrations.Apply(ctx, db); err != nil {
		return nil, err
	}

	log.Info("storage backend", "kind", "postgres")
	return &backend{
		offers:  offerstore.NewPostgres(db),
		records: recordstore.NewPostgres(db),
		dir:     owners.NewPostgres(db),
		trail:   auditpg.New(db),
		runner:  tx.NewSQLRunner(db),
		db:      db,
	}, nil
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()

	be, err := buildBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	if be.db != nil {
		defer be.db.Close()
	}

	g, ctx := errgroup.WithContext(ctx)

	recorderOpts := []audit.Option{audit.WithLogger(log)}

	var kafka *publisher.Kafka
	if cfg.KafkaBrokers != "" {
		kafka, err = publisher.NewKafka(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaTopic, log)
		if err != nil {
			return err
		}
		defer kafka.Close()
		recorderOpts = append(recorderOpts, audit.WithNotifier(kafka))
		log.Info("audit kafka publisher enabled", "topic", cfg.KafkaTopic)
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	var cache readmodel.Cache
	if redisClient != nil {
		defer redisClient.Close()
		cache = readmodel.NewRedisCache(redisClient.Client, cfg.Redis.SummaryTTL)
		worker := readmodel.NewWorker(be.records, cache, log, 256)
		recorderOpts = append(recorderOpts, audit.WithNotifier(worker))
		g.Go(func() error { return worker.Run(ctx) })
		log.Info("read-model cache enabled", "summary_ttl", cfg.Redis.SummaryTTL)
	}

	recorder := audit.NewRecorder(be.trail, recorderOpts...)

	svc := service.New(be.offers, be.records, be.dir, be.runner,
		service.WithAuditor(recorder),
		service.WithLogger(log),
		service.WithMetrics(metrics.New()),
	)

	handlerOpts := []handler.Option{}
	if cache != nil {
		handlerOpts = append(handlerOpts, handler.WithSummaryCache(cache))
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(log))
	r.Use(middleware.ContentTypeJSON)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireActor(cfg.JWTSigningKey, log))
		handler.New(svc, log, handlerOpts...).Register(r)
		audithandler.New(recorder, log).Register(r)
		owners.NewHandler(be.dir, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, r)

	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return pruneLoop(ctx, recorder, cfg.AuditRetention, log) })

	return g.Wait()
}

// pruneLoop enforces the audit retention window once a day.
func pruneLoop(ctx context.Context, recorder *audit.Recorder, retention time.Duration, log *slog.Logger) error {
	if retention <= 0 {
		return nil
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := recorder.Prune(ctx, time.Now().UTC().Add(-retention)); err != nil {
				log.Error("audit prune failed", "error", err)
			}
		}
	}
}
