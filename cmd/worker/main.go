package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"audioscribe-go/internal/analysis"
	"audioscribe-go/internal/chunker"
	"audioscribe-go/internal/config"
	"audioscribe-go/internal/credits"
	"audioscribe-go/internal/logger"
	"audioscribe-go/internal/media"
	"audioscribe-go/internal/pipeline"
	"audioscribe-go/internal/progress"
	"audioscribe-go/internal/queue"
	"audioscribe-go/internal/speech"
	"audioscribe-go/internal/storage"
	"audioscribe-go/internal/store"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "audioscribe-worker").Info("starting worker")

	cfg := config.Load()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Fatal("invalid REDIS_URL")
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).Fatal("redis unreachable")
	}
	log.WithField("redis", opts.Addr).Info("redis connected")

	blobs, err := storage.NewDiskStore(cfg.StorageRoot)
	if err != nil {
		log.WithError(err).Fatal("storage init failed")
	}

	transcoder := media.NewTranscoder()

	pipe := pipeline.New(
		cfg,
		log,
		blobs,
		transcoder,
		chunker.NewSplitter(transcoder),
		speech.NewClient(cfg.SpeechURL, cfg.SpeechAPIKey, cfg.SpeechModel, cfg.HTTPTimeout),
		analysis.NewClient(cfg.LLMGatewayURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.HTTPTimeout),
		credits.NewRedisLedger(rdb),
		store.NewRedisRecordings(rdb),
		store.NewRedisTranscripts(rdb),
		progress.NewRedisSink(rdb),
	)

	source := queue.NewRedisSource(rdb, cfg.QueueStream, cfg.ConsumerGroup, cfg.WorkerID)
	runner := queue.NewRunner(source, pipe, cfg.MaxAttempts, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithField("stream", cfg.QueueStream).WithField("worker_id", cfg.WorkerID).Info("listening")
	if err := runner.Run(ctx); err != nil {
		log.WithError(err).Fatal("worker terminated")
	}
}
