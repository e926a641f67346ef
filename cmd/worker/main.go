package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"esign-backend/internal/bootstrap"
	"esign-backend/internal/shared/config"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}

	log.Printf("worker started interval=%s", cfg.JobInterval)
	app.Scheduler.Run(ctx)
	log.Printf("worker stopped")
}
