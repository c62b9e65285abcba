package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/litgraph/backend/internal/config"
	"github.com/litgraph/backend/internal/dedup"
	"github.com/litgraph/backend/internal/fetcher"
	"github.com/litgraph/backend/internal/linker"
	"github.com/litgraph/backend/internal/metrics"
	"github.com/litgraph/backend/internal/repository/neo4jrepo"
	"github.com/litgraph/backend/internal/repository/redisrepo"
	"github.com/litgraph/backend/internal/urlmap"
	"github.com/litgraph/backend/internal/worker"
	"github.com/litgraph/backend/pkg/arxiv"
	"github.com/litgraph/backend/pkg/crossref"
	"github.com/litgraph/backend/pkg/grobid"
	"github.com/litgraph/backend/pkg/httpclient"
	"github.com/litgraph/backend/pkg/objectstore"
	"github.com/litgraph/backend/pkg/semanticscholar"
	"github.com/litgraph/backend/pkg/unpaywall"
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
	m := metrics.New(registry)

	broker := httpclient.New(httpclient.Options{
		InternalTimeout: cfg.Broker.InternalTimeout,
		ExternalTimeout: cfg.Broker.ExternalTimeout,
		ExternalProxy:   cfg.Broker.ExternalProxy,
		MaxRetries:      cfg.Broker.MaxRetries,
		RetryBaseDelay:  cfg.Broker.RetryBaseDelay,
	})
	broker.OnResult = m.ObserveOutbound

	store, err := objectstore.NewClient(ctx, cfg.ObjectStore)
	if err != nil {
		log.WithError(err).Warn("object store unavailable, uploaded PDFs cannot be fetched")
		store = nil
	}

	crossrefClient := crossref.NewClient(broker, cfg.Providers.CrossrefBaseURL, cfg.Providers.CrossrefMailto)
	arxivClient := arxiv.NewClient(broker, cfg.Providers.ArxivBaseURL)
	s2Client := semanticscholar.NewClient(broker, cfg.Providers.SemanticScholarURL, cfg.Providers.SemanticScholarAPIKey)
	grobidClient := grobid.NewClient(broker, cfg.Grobid.BaseURL)
	unpaywallClient := unpaywall.NewClient(broker, cfg.Providers.UnpaywallBaseURL, cfg.Providers.UnpaywallEmail)
	scraper := urlmap.NewScraper(broker)

	var contentStore fetcher.ObjectStore
	if store != nil {
		contentStore = store
	}
	metadataFetcher := fetcher.NewMetadataFetcher(crossrefClient, arxivClient, s2Client, grobidClient, scraper, log)
	contentFetcher := fetcher.NewContentFetcher(contentStore, broker, scraper, unpaywallClient, cfg.Upload.MaxPDFBytes, log)
	referencesFetcher := fetcher.NewReferencesFetcher(crossrefClient, s2Client, grobidClient, log)

	coordinator := worker.NewCoordinator(worker.CoordinatorOptions{
		Tasks:      taskRepo,
		Literature: litRepo,
		Mapper:     urlmap.NewMapper(scraper, s2Client, cfg.Pipeline.MappingThreshold, log),
		Dedup:      dedup.NewEngine(litRepo, taskRepo, log),
		Metadata:   metadataFetcher,
		Content:    contentFetcher,
		References: referencesFetcher,
		Fulltext:   grobidClient,
		Linker: linker.New(litRepo, cfg.Pipeline.FuzzyGate, cfg.Pipeline.FuzzyAccept,
			cfg.Pipeline.FuzzyYearTolerance, log),
		Metrics:     m,
		SoftTimeout: cfg.Pipeline.TaskSoftTimeout,
		HardTimeout: cfg.Pipeline.TaskHardTimeout,
		Logger:      log,
	})

	pool := worker.NewPool(taskRepo, coordinator, cfg.Pipeline.WorkerParallelism, m, log)
	log.WithField("parallelism", cfg.Pipeline.WorkerParallelism).Info("worker pool starting")
	pool.Run(ctx)
	log.Info("worker stopped")
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}
	return log
}

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
