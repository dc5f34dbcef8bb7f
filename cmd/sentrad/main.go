// Sentrad is the sentra daemon: an authorization-filtered retrieval API
// plus behavioral anomaly detection over a shared vector store.
//
// Configuration is loaded from ~/.config/sentra/config.yaml overridden by
// SENTRA_* environment variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	sentrad
//
//	# Configure via environment
//	SENTRA_SERVER_HTTP_PORT=9090 SENTRA_QDRANT_HOST=qdrant.internal sentrad
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sentra/internal/config"
	"github.com/fyrsmithlabs/sentra/internal/embeddings"
	"github.com/fyrsmithlabs/sentra/internal/generation"
	"github.com/fyrsmithlabs/sentra/internal/httpapi"
	"github.com/fyrsmithlabs/sentra/internal/ingest"
	"github.com/fyrsmithlabs/sentra/internal/logging"
	"github.com/fyrsmithlabs/sentra/internal/reranker"
	"github.com/fyrsmithlabs/sentra/internal/retrieval"
	"github.com/fyrsmithlabs/sentra/internal/smartaccess"
	"github.com/fyrsmithlabs/sentra/internal/telemetry"
	"github.com/fyrsmithlabs/sentra/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/sentra/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  sentrad           Start the sentra daemon\n")
			fmt.Fprintf(os.Stderr, "  sentrad version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("sentrad by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the sentra server and blocks until context is cancelled.
func run(ctx context.Context, configPath string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("Starting sentra",
		zap.Int("port", cfg.Server.Port),
		zap.String("vector_store", cfg.VectorStore.Provider),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()))

	tel, err := initTelemetry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	store, err := initStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	services, cleanup, err := initServices(cfg, store, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer cleanup()

	srv, err := httpapi.NewServer(
		&httpapi.Config{Host: "0.0.0.0", Port: cfg.Server.Port},
		services.retrieval,
		services.ingest,
		services.smartaccess,
		nil,
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// initTelemetry builds the telemetry providers from app config.
func initTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Telemetry, error) {
	telCfg := telemetry.NewDefaultConfig()
	telCfg.Enabled = cfg.Observability.EnableTelemetry
	telCfg.ServiceName = cfg.Observability.ServiceName
	telCfg.ServiceVersion = version
	if cfg.Observability.OTLPEndpoint != "" {
		telCfg.Endpoint = cfg.Observability.OTLPEndpoint
	}
	if cfg.Observability.OTLPProtocol != "" {
		telCfg.Protocol = cfg.Observability.OTLPProtocol
	}
	return telemetry.New(ctx, telCfg)
}

// initStore creates the vector store backend and ensures both collections
// exist.
func initStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (vectorstore.Store, error) {
	var store vectorstore.Store

	switch cfg.VectorStore.Provider {
	case "memory":
		logger.Warn("using in-memory vector store; data is not persisted")
		store = vectorstore.NewMemoryStore()
	default:
		qdrantStore, err := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			UseTLS:     cfg.Qdrant.UseTLS,
			VectorSize: uint64(cfg.Qdrant.VectorSize),
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to qdrant at %s:%d: %w", cfg.Qdrant.Host, cfg.Qdrant.Port, err)
		}
		logger.Info("Connected to qdrant",
			zap.String("host", cfg.Qdrant.Host),
			zap.Int("port", cfg.Qdrant.Port))
		store = qdrantStore
	}

	vectorSize := uint64(cfg.Qdrant.VectorSize)
	for _, collection := range []string{cfg.Qdrant.DocumentsCollection, cfg.Qdrant.EventsCollection} {
		if err := store.EnsureCollection(ctx, collection, vectorSize); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("ensuring collection %s: %w", collection, err)
		}
	}
	logger.Info("Collections verified",
		zap.String("documents", cfg.Qdrant.DocumentsCollection),
		zap.String("events", cfg.Qdrant.EventsCollection),
		zap.Uint64("vector_size", vectorSize))

	return store, nil
}

// appServices holds the wired business services.
type appServices struct {
	retrieval   *retrieval.Service
	ingest      *ingest.Service
	smartaccess *smartaccess.Service
}

// initServices wires embeddings, generation, retrieval, ingestion, and
// smart access. The returned cleanup releases the NATS connection and the
// settings watcher.
func initServices(cfg *config.Config, store vectorstore.Store, logger *zap.Logger) (*appServices, func(), error) {
	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		Timeout: cfg.Embeddings.Timeout.Duration(),
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedding service: %w", err)
	}
	logger.Info("Embedding service initialized",
		zap.String("base_url", cfg.Embeddings.BaseURL),
		zap.String("model", cfg.Embeddings.Model))

	generator, err := generation.NewHTTPClient(generation.Config{
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		APIKey:      cfg.Generation.APIKey.Value(),
		Timeout:     cfg.Generation.Timeout.Duration(),
		MaxTokens:   cfg.Generation.MaxTokens,
		Temperature: cfg.Generation.Temperature,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating generation client: %w", err)
	}

	retriever := retrieval.NewRetriever(store, embedder, cfg.Qdrant.DocumentsCollection)
	synthesizer := retrieval.NewSynthesizer(generator, cfg.Retrieval.MaxContextChars)
	retrievalSvc := retrieval.NewService(retrieval.Config{
		TopK:            cfg.Retrieval.TopK,
		TopN:            cfg.Retrieval.TopN,
		MaxContextChars: cfg.Retrieval.MaxContextChars,
	}, retriever, reranker.NewOverlapReranker(), synthesizer, logger)

	ingestSvc := ingest.NewService(ingest.Config{
		Collection: cfg.Qdrant.DocumentsCollection,
		ChunkLen:   cfg.Retrieval.ChunkLen,
	}, store, embedder, logger)

	settings, err := smartaccess.NewSettingsStore(cfg.SmartAccess.SettingsPath, smartaccess.Settings{
		Threshold:    cfg.SmartAccess.Threshold,
		BaselineDays: cfg.SmartAccess.BaselineDays,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating settings store: %w", err)
	}
	closeWatch, err := settings.Watch()
	if err != nil {
		return nil, nil, fmt.Errorf("watching settings file: %w", err)
	}

	var notifier smartaccess.Notifier = smartaccess.NoopNotifier{}
	var natsConn *nats.Conn
	if cfg.SmartAccess.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.SmartAccess.NATSURL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			_ = closeWatch()
			return nil, nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.SmartAccess.NATSURL, err)
		}
		notifier = smartaccess.NewNATSNotifier(natsConn, cfg.SmartAccess.NATSSubject)
		logger.Info("Connected to NATS", zap.String("url", cfg.SmartAccess.NATSURL))
	}

	smartSvc := smartaccess.NewService(smartaccess.Config{
		Collection:  cfg.Qdrant.EventsCollection,
		CheckWindow: cfg.SmartAccess.CheckWindow.Duration(),
	}, store, smartaccess.NewCollector(embedder), settings, notifier, logger)

	cleanup := func() {
		if natsConn != nil {
			natsConn.Close()
		}
		if err := closeWatch(); err != nil {
			logger.Warn("settings watcher close failed", zap.Error(err))
		}
	}

	return &appServices{
		retrieval:   retrievalSvc,
		ingest:      ingestSvc,
		smartaccess: smartSvc,
	}, cleanup, nil
}
