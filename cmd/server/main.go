package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"civreg/internal/adminarea"
	"civreg/internal/dedup"
	"civreg/internal/documents"
	eventhandler "civreg/internal/event/handler"
	"civreg/internal/event/legality"
	eventmetrics "civreg/internal/event/metrics"
	eventservice "civreg/internal/event/service"
	eventstore "civreg/internal/event/store"
	"civreg/internal/eventconfig"
	httpapi "civreg/internal/http"
	"civreg/internal/platform/config"
	"civreg/internal/platform/httpserver"
	"civreg/internal/platform/logger"
	platformredis "civreg/internal/platform/redis"
	"civreg/internal/search"
	"civreg/internal/stream"
	"civreg/internal/token"
)

// main wires dependencies and runs the server plus the stream workers.
// Business logic lives in the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	var actionLog eventstore.ActionLog
	var txRunner eventstore.TxRunner
	var areaStore adminarea.Store
	if cfg.PostgresDSN != "" {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		actionLog = eventstore.NewPostgres(db)
		txRunner = eventstore.NewPostgresTx(db)
		areaStore = adminarea.NewPostgres(db)
	} else {
		log.Warn("no postgres DSN configured, using in-memory stores")
		actionLog = eventstore.NewMemory()
		txRunner = eventstore.NewMemoryTx()
		areaStore = adminarea.NewMemory()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var searchClient search.Client
	if cfg.SearchURL != "" {
		searchClient = search.NewHTTPClient(cfg.SearchURL, 3*time.Second)
	} else {
		log.Warn("no search URL configured, using in-memory matcher")
		searchClient = search.NewMemory()
	}

	var configs eventconfig.Provider
	if cfg.EventConfigURL != "" {
		cacheOpts := []eventconfig.CacheOption{eventconfig.WithLogger(log)}
		if redisClient != nil {
			cacheOpts = append(cacheOpts, eventconfig.WithRedis(redisClient.Client))
		}
		configs = eventconfig.NewCache(eventconfig.NewClient(cfg.EventConfigURL, 5*time.Second), cacheOpts...)
	} else {
		log.Warn("no event config URL configured, using built-in form schemas")
		configs = eventconfig.Defaults()
	}

	var docs documents.Service
	if cfg.DocumentsURL != "" {
		docs = documents.NewHTTPClient(cfg.DocumentsURL, 5*time.Second)
	} else {
		docs = documents.NewMemory()
	}

	checker := legality.NewChecker(legality.WithDocuments(docs))
	dedupChecker := dedup.NewChecker(searchClient, 3*time.Second)

	serviceOpts := []eventservice.Option{
		eventservice.WithLogger(log),
		eventservice.WithMetrics(eventmetrics.New()),
	}

	group, ctx := errgroup.WithContext(ctx)

	var kafkaClient *kgo.Client
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err = kgo.NewClient(
			kgo.SeedBrokers(cfg.Kafka.Brokers...),
			kgo.ConsumerGroup(cfg.Kafka.ConsumerGroup),
			kgo.ConsumeTopics(cfg.Kafka.ActionsTopic),
		)
		if err != nil {
			return err
		}
		defer kafkaClient.Close()

		if err := stream.EnsureTopic(ctx, kafkaClient, cfg.Kafka.ActionsTopic, 3); err != nil {
			return err
		}

		publisher := stream.NewPublisher(kafkaClient, cfg.Kafka.ActionsTopic, log)
		serviceOpts = append(serviceOpts, eventservice.WithPublisher(publisher))
		group.Go(func() error { return publisher.Run(ctx) })

		indexer := stream.NewIndexer(kafkaClient, searchClient, log)
		group.Go(func() error { return indexer.Run(ctx) })
	} else {
		log.Warn("no kafka brokers configured, read-model stream disabled")
	}

	eventSvc := eventservice.New(actionLog, txRunner, checker, configs, dedupChecker, serviceOpts...)
	areaSvc := adminarea.NewService(areaStore, log)

	jwtService := token.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)

	router := httpapi.NewRouter(httpapi.Dependencies{
		Events:    eventhandler.New(eventSvc, areaSvc, log),
		Areas:     adminarea.NewHandler(areaSvc, log),
		Validator: token.NewJWTServiceAdapter(jwtService),
		DB:        db,
		Redis:     redisClient,
		Logger:    log,
	})

	srv := httpserver.New(cfg.Addr, router)

	group.Go(func() error {
		log.Info("starting civreg server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
