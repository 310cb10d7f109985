package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/whisperplaud/api/internal/bus"
	"github.com/whisperplaud/api/internal/config"
	"github.com/whisperplaud/api/internal/storage"
	"github.com/whisperplaud/api/internal/worker"
)

// Development worker. Stands in for the real transcription worker so the
// whole upload-to-transcript flow runs locally; see internal/worker.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifyBus := bus.NewRedisBus(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	objects, err := storage.New(storage.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Bucket:    cfg.S3.Bucket,
		Region:    cfg.S3.Region,
		UseSSL:    cfg.S3.UseSSL,
	})
	if err != nil {
		log.Fatalf("Failed to init object storage: %v", err)
	}

	sim := worker.NewSimulator(notifyBus, objects, 2*time.Second)
	if err := sim.Run(ctx); err != nil {
		log.Fatalf("Worker error: %v", err)
	}
}
