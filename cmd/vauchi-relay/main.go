package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"vauchi/go-core/internal/platform/privacylog"
	"vauchi/go-core/internal/relay"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	listenAddr := flag.String("listen", "0.0.0.0:8080", "WebSocket listen address")
	httpAddr := flag.String("http", "0.0.0.0:8081", "health/metrics HTTP listen address")
	backend := flag.String("storage", "memory", "blob storage backend: memory | sqlite")
	dataDir := flag.String("data-dir", "./vauchi-relay-data", "directory for the sqlite backend")
	rateLimit := flag.Int("rate-limit", 60, "messages per client per minute")
	maxConns := flag.Int("max-connections", 1000, "maximum concurrent connections")
	blobTTLDays := flag.Int("blob-ttl-days", 90, "days before undelivered blobs expire")
	metricsToken := flag.String("metrics-token", "", "bearer token required for /metrics (optional)")
	flag.Parse()
	if *showVersion {
		log.Printf("vauchi-relay version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	logger := slog.New(privacylog.WrapHandler(slog.NewJSONHandler(os.Stderr, nil)))
	slog.SetDefault(logger)

	cfg := relay.DefaultConfig()
	cfg.ListenAddr = *listenAddr
	cfg.HTTPAddr = *httpAddr
	cfg.StorageBackend = *backend
	cfg.DataDir = *dataDir
	cfg.RateLimitPerMin = *rateLimit
	cfg.MaxConnections = *maxConns
	cfg.BlobTTL = time.Duration(*blobTTLDays) * 24 * time.Hour
	cfg.MetricsToken = *metricsToken

	var store relay.BlobStore
	switch cfg.StorageBackend {
	case "sqlite":
		s, err := relay.OpenSQLiteBlobStore(filepath.Join(cfg.DataDir, "blobs.db"))
		if err != nil {
			log.Fatalf("vauchi-relay: sqlite backend: %v", err)
		}
		store = s
	case "memory":
		store = relay.NewMemoryBlobStore()
	default:
		log.Fatalf("vauchi-relay: unknown storage backend %q", cfg.StorageBackend)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := relay.NewServer(cfg, store, relay.NewMetrics(), logger)
	logger.Info("vauchi-relay starting",
		"listen", cfg.ListenAddr, "http", cfg.HTTPAddr, "backend", cfg.StorageBackend)

	go server.RunCleanup(ctx)
	go func() {
		if err := server.ServeHTTP(ctx); err != nil {
			logger.Error("http server failed", "error", err)
		}
	}()
	if err := server.ListenAndServe(ctx); err != nil {
		log.Fatalf("vauchi-relay failed: %v", err)
	}
	logger.Info("vauchi-relay stopped")
}
