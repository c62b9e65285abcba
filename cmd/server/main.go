package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/litgraph/backend/internal/config"
	"github.com/litgraph/backend/internal/dedup"
	delivery "github.com/litgraph/backend/internal/delivery/http"
	"github.com/litgraph/backend/internal/metrics"
	"github.com/litgraph/backend/internal/repository/neo4jrepo"
	"github.com/litgraph/backend/internal/repository/redisrepo"
	"github.com/litgraph/backend/internal/usecase"
	"github.com/litgraph/backend/pkg/objectstore"
)

func main() {
	log := newLogger()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver, err := connectNeo4j(ctx, cfg.Graph, log)
	if err != nil {
		log.WithError(err).Fatal("neo4j connection failed")
	}
	defer driver.Close(context.Background())

	litRepo := neo4jrepo.NewLiteratureRepository(driver, cfg.Graph.Database)
	if err := litRepo.EnsureSchema(ctx); err != nil {
		log.WithError(err).Fatal("schema setup failed")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	taskRepo := redisrepo.NewTaskRepository(redisClient, cfg.Pipeline.ResultTTL, cfg.Pipeline.StalenessWindow, log)
	if err := taskRepo.Ping(ctx); err != nil {
		log.WithError(err).Fatal("redis connection failed")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.New(registry)

	store, err := objectstore.NewClient(ctx, cfg.ObjectStore)
	if err != nil {
		// Uploads are optional; everything else keeps working.
		log.WithError(err).Warn("object store unavailable, upload endpoints disabled")
		store = nil
	}

	engine := dedup.NewEngine(litRepo, taskRepo, log)
	service := usecase.NewLiteratureService(litRepo, taskRepo, engine, usecase.GraphLimits{
		DepthDefault: cfg.Pipeline.GraphDepthDefault,
		DepthMax:     cfg.Pipeline.GraphDepthMax,
		SeedsMax:     cfg.Pipeline.GraphSeedsMax,
	}, log)

	var storeIface delivery.ObjectStore
	if store != nil {
		storeIface = store
	}
	handler := delivery.NewHandler(service, taskRepo, litRepo, storeIface, cfg.Upload, log)
	router := delivery.NewRouter(handler, cfg.CORS,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("api server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("forced shutdown")
	}
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}
	return log
}

// connectNeo4j retries connectivity for a short window so the server survives
// a database that comes up slightly later.
func connectNeo4j(ctx context.Context, cfg config.GraphConfig, log *logrus.Logger) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 0; attempt < 10; attempt++ {
		if lastErr = driver.VerifyConnectivity(ctx); lastErr == nil {
			return driver, nil
		}
		log.WithError(lastErr).WithField("attempt", attempt+1).Warn("neo4j not ready, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return nil, lastErr
}
