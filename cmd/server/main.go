package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ellman12/WingTechBot-MK3-sub001/internal/audio"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/config"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/metrics"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/mixer"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/player"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/probe"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/server"
	"github.com/ellman12/WingTechBot-MK3-sub001/internal/transcode"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "audio-engine"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration; the default path may legitimately be absent
	cfg, err := loadConfig(*configPath)
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
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("channels", cfg.Audio.Channels),
		slog.Int("frame_duration_ms", cfg.Audio.FrameDurationMS),
		slog.Int("max_streams", cfg.Mixer.MaxStreams),
		slog.String("transport", cfg.Player.Transport),
		slog.String("ffprobe_path", cfg.Probe.FFprobePath),
		slog.String("ffmpeg_path", cfg.Transcode.FFmpegPath),
		slog.String("log_level", cfg.Logging.Level),
	)

	format := audio.Format{
		SampleRate:    cfg.Audio.SampleRate,
		Channels:      cfg.Audio.Channels,
		FrameDuration: cfg.Audio.GetFrameDuration(),
	}

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize the processing pipeline
	detector := probe.NewDetector(cfg.Probe, logger)
	transcoder := transcode.NewTranscoder(cfg.Transcode, format, logger)
	mix := mixer.New(format, cfg.Mixer.MaxStreams, logger, appMetrics)
	logger.Info("Mixer initialized",
		slog.Int("max_streams", cfg.Mixer.MaxStreams),
		slog.Int("frame_size", format.FrameSize()),
	)

	// Select the output transport
	var transport player.Transport
	switch cfg.Player.Transport {
	case "speaker":
		transport = player.NewSpeakerTransport()
	default:
		transport = player.NewNullTransport()
	}

	// Initialize the player
	p, err := player.New(cfg.Player, format, mix, transport, detector, transcoder, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create player", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := p.Start(); err != nil {
		logger.Error("Failed to start player", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Player initialized", slog.String("transport", cfg.Player.Transport))

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, p, transcoder, appMetrics)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop the API and the playback pipeline in parallel
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	var g errgroup.Group
	if httpServer != nil {
		g.Go(func() error {
			return httpServer.Stop(shutdownCtx)
		})
	}
	g.Go(func() error {
		return p.Close()
	})
	if err := g.Wait(); err != nil {
		logger.Error("Error during shutdown", slog.String("error", err.Error()))
	}

	mix.Close()

	// Final statistics
	stats := transcoder.GetStats()
	logger.Info("Final conversion statistics",
		slog.Uint64("started", stats.Started),
		slog.Uint64("succeeded", stats.Succeeded),
		slog.Uint64("failed", stats.Failed),
	)

	logger.Info("Service stopped")
}

// loadConfig reads the configuration file, falling back to built-in
// defaults when the default path does not exist
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == defaultConfigPath {
		return config.Default(), nil
	}
	return config.Load(path)
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
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
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
