package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openfun/marsha-sub002/config"
	"github.com/openfun/marsha-sub002/metrics"
	"github.com/openfun/marsha-sub002/services"
	"github.com/openfun/marsha-sub002/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.Load()
	setupLogging(cfg)

	log.Info().Msg("starting VOD packaging service")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}

	dbSvc, err := services.NewDatabaseService(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer dbSvc.Close()

	sess := services.NewAWSSession(cfg)
	dispatcher := services.NewRedisDispatcher(redisClient, cfg)
	ffmpeg := services.NewFFmpegService(cfg.FFmpegPath)

	planner := worker.NewPlanner(cfg, services.NewMediaPackageService(sess), services.NewManifestService(), dispatcher)
	transcoder := worker.NewChunkTranscoder(ffmpeg, dispatcher)
	stitcher := worker.NewResolutionStitcher(ffmpeg, dispatcher)
	uploader := worker.NewAssetUploader(services.NewS3Service(sess), dbSvc)

	met := metrics.New()
	pool := worker.NewPool(
		redisClient,
		met,
		time.Duration(cfg.JobTimeout)*time.Second,
		worker.Stages(cfg, planner, transcoder, stitcher, uploader),
	)

	ctx, cancel := context.WithCancel(context.Background())
	poolDone := make(chan struct{})
	go func() {
		pool.Start(ctx)
		close(poolDone)
	}()

	metricsSrv := startMetricsServer(cfg, met)

	log.Info().
		Str("work_root", cfg.WorkRoot).
		Int("chunk_duration", cfg.ChunkDuration).
		Str("harvest_queue", cfg.HarvestQueues.Pending).
		Str("metrics_port", cfg.MetricsPort).
		Msg("service ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutdown signal received, stopping workers")
	cancel()

	select {
	case <-poolDone:
		log.Info().Msg("all workers stopped gracefully")
	case <-time.After(shutdownTimeout):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	redisClient.Close()
	log.Info().Msg("service stopped")
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func startMetricsServer(cfg *config.Config, met *metrics.Metrics) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", met.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	return srv
}
