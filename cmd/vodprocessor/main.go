// Command vodprocessor watches a recordings directory and turns finished
// live-stream recordings into multi-bitrate HLS rendition sets.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bitriver-vod/internal/api"
	"bitriver-vod/internal/config"
	"bitriver-vod/internal/job"
	"bitriver-vod/internal/notify"
	"bitriver-vod/internal/observability/logging"
	"bitriver-vod/internal/observability/metrics"
	"bitriver-vod/internal/pipeline"
	"bitriver-vod/internal/server"
	"bitriver-vod/internal/serverutil"
	"bitriver-vod/internal/transcode"
	"bitriver-vod/internal/watch"
)

func main() {
	inputDir := flag.String("input", "", "directory watched for finished recordings")
	outputDir := flag.String("output", "", "directory receiving processed rendition sets")
	tmpDir := flag.String("tmp", "", "scratch directory for encoder working files")
	addr := flag.String("addr", "", "HTTP listen address for the query surface")
	redisAddr := flag.String("redis-addr", "", "Redis address for job event notifications")
	eventChannel := flag.String("event-channel", "", "Redis pub/sub channel for job events")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	flag.Parse()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logging.Init(logging.Config{}).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg.InputDir = firstNonEmpty(*inputDir, cfg.InputDir)
	cfg.OutputDir = firstNonEmpty(*outputDir, cfg.OutputDir)
	cfg.TmpDir = firstNonEmpty(*tmpDir, cfg.TmpDir)
	cfg.Addr = firstNonEmpty(*addr, cfg.Addr)
	cfg.RedisAddr = firstNonEmpty(*redisAddr, cfg.RedisAddr)
	cfg.EventChannel = firstNonEmpty(*eventChannel, cfg.EventChannel)
	cfg.LogLevel = firstNonEmpty(*logLevel, cfg.LogLevel)
	cfg.TLSCert = firstNonEmpty(*tlsCert, cfg.TLSCert)
	cfg.TLSKey = firstNonEmpty(*tlsKey, cfg.TLSKey)
	if err := cfg.Validate(); err != nil {
		logging.Init(logging.Config{}).Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Init(logging.Config{Level: cfg.LogLevel})
	recorder := metrics.Default()

	for _, dir := range []string{cfg.InputDir, cfg.OutputDir, cfg.TmpDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to prepare directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	store := job.NewStore()
	handler := api.NewHandler(store)

	publisher := notify.Publisher(notify.NewMemoryPublisher())
	if cfg.NotificationsEnabled() {
		redisPublisher, err := notify.NewRedisPublisher(notify.RedisOptions{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			Channel:  cfg.EventChannel,
		})
		if err != nil {
			logger.Error("failed to configure notifier", "error", err)
			os.Exit(1)
		}
		publisher = redisPublisher
		handler.Notifier = redisPublisher
		logger.Info("job notifications enabled", "channel", cfg.EventChannel)
	} else {
		logger.Info("job notifications disabled, no Redis address configured")
	}
	defer publisher.Close()

	runner := transcode.ExecRunner{Dir: cfg.TmpDir}
	orchestrator := transcode.NewOrchestrator(transcode.OrchestratorConfig{
		Runner:    runner,
		Ladder:    cfg.Ladder,
		Timeout:   cfg.EncodeTimeout,
		Logger:    logging.WithComponent(logger, "transcoder"),
		OnFailure: recorder.RenditionFailed,
	})

	pipe, err := pipeline.New(pipeline.Config{
		Store:             store,
		Transcoder:        orchestrator,
		Runner:            runner,
		Publisher:         publisher,
		Recorder:          recorder,
		Logger:            logger,
		OutputDir:         cfg.OutputDir,
		ThumbnailInterval: cfg.ThumbnailInterval,
	})
	if err != nil {
		logger.Error("failed to assemble pipeline", "error", err)
		os.Exit(1)
	}

	watcher, err := watch.New(watch.Config{
		Dir:           cfg.InputDir,
		Process:       pipe.Process,
		Logger:        logger,
		Interval:      cfg.PollInterval,
		StableAfter:   cfg.StableAfter,
		MaxConcurrent: cfg.MaxConcurrentJobs,
	})
	if err != nil {
		logger.Error("failed to assemble watcher", "error", err)
		os.Exit(1)
	}

	srv, err := server.New(handler, server.Config{
		Addr:    cfg.Addr,
		TLS:     server.TLSConfig{CertFile: cfg.TLSCert, KeyFile: cfg.TLSKey},
		Logger:  logger,
		Metrics: recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweepStop := job.StartSweeper(ctx, logging.WithComponent(logger, "sweeper"), store, cfg.SweepInterval, cfg.Retention, recorder.JobsSwept)
	defer sweepStop()

	go func() {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("watcher stopped", "error", err)
			stop()
		}
	}()

	logger.Info("VOD processor started",
		"input", cfg.InputDir,
		"output", cfg.OutputDir,
		"addr", cfg.Addr,
		"renditions", len(cfg.Ladder))

	if err := serverutil.Run(ctx, serverutil.Config{
		Server:   srv.HTTPServer(),
		CertFile: cfg.TLSCert,
		KeyFile:  cfg.TLSKey,
		Logger:   logger,
	}); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("VOD processor stopped")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
