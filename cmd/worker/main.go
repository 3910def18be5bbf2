package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/yungbote/podreach-backend/internal/app"
)

func main() {
	// A missing .env is normal in deployed environments.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx)
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	application.Start(ctx)
	application.Log.Info("Worker running; waiting for shutdown signal")
	<-ctx.Done()
	application.Log.Info("Shutdown signal received, draining loops...")
}
