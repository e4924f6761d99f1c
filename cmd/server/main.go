package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/priyanshup0046/aura-coach/internal/analysis"
	"github.com/priyanshup0046/aura-coach/internal/coach"
	"github.com/priyanshup0046/aura-coach/internal/config"
	"github.com/priyanshup0046/aura-coach/internal/metrics"
	"github.com/priyanshup0046/aura-coach/internal/server"
	"github.com/priyanshup0046/aura-coach/internal/session"
	"github.com/priyanshup0046/aura-coach/internal/store"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "aura-coach"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary
	logger.Info("Configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("address", cfg.Server.Address),
		slog.Int64("max_chunk_bytes", cfg.Server.MaxChunkBytes),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("min_frame_samples", cfg.Audio.MinFrameSamples),
		slog.Float64("pitch_min_frequency", cfg.Pitch.MinFrequency),
		slog.Float64("pitch_max_frequency", cfg.Pitch.MaxFrequency),
		slog.String("storage_driver", cfg.Storage.Driver),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize session record store
	recordStore, err := newStore(cfg.Storage, logger)
	if err != nil {
		logger.Error("Failed to create record store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Record store initialized", slog.String("driver", cfg.Storage.Driver))

	// Initialize feature extractor
	extractor, err := analysis.NewExtractor(cfg.Audio.SampleRate, analysis.PitchConfig{
		MinFrequency: cfg.Pitch.MinFrequency,
		MaxFrequency: cfg.Pitch.MaxFrequency,
		FrameLength:  cfg.Pitch.FrameLength,
		HopLength:    cfg.Pitch.HopLength,
		Threshold:    cfg.Pitch.Threshold,
	})
	if err != nil {
		logger.Error("Failed to create feature extractor", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Feature extractor initialized",
		slog.Float64("pitch_band_low_hz", cfg.Pitch.MinFrequency),
		slog.Float64("pitch_band_high_hz", cfg.Pitch.MaxFrequency),
	)

	// Initialize session accumulator and the coaching service
	sessions := session.NewAccumulator(logger)
	svc := coach.NewService(logger, extractor, sessions, recordStore, cfg.Audio.MinFrameSamples)
	logger.Info("Coaching service initialized")

	// Initialize HTTP API server
	httpServer := server.NewHTTPServer(cfg.Server, logger, cfg, svc, appMetrics)
	logger.Info("HTTP API server initialized",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	// Start HTTP server
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("listen_address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Close the record store (flush and release the backend)
	if err := recordStore.Close(); err != nil {
		logger.Error("Error closing record store", slog.String("error", err.Error()))
	}

	// Get final statistics
	stats := httpServer.GetStreamStats()
	logger.Info("Final server statistics",
		slog.Uint64("connections_total", stats.TotalConnections),
		slog.Uint64("chunks_received", stats.ChunksReceived),
		slog.Uint64("chunks_processed", stats.ChunksProcessed),
		slog.Uint64("chunks_rejected", stats.ChunksRejected),
		slog.Uint64("chunks_gated", stats.ChunksGated),
		slog.Int("active_sessions", svc.ActiveSessionCount()),
	)

	logger.Info("Service stopped")
}

// newStore creates the session record store selected by the storage driver
func newStore(cfg config.StorageConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case "file":
		return store.NewFileStore(cfg.Dir, logger)
	case "sqlite":
		return store.NewSQLiteStore(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output io.Writer
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// File path: write through the rotating logger
		output = &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.Rotation.MaxSizeMB,
			MaxBackups: cfg.Rotation.MaxBackups,
			MaxAge:     cfg.Rotation.MaxAgeDays,
			Compress:   cfg.Rotation.Compress,
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
