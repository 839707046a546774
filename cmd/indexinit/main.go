// indexinit creates the vector store collections if they do not exist yet.
// Run once per environment before starting workers.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/pixelseek/pixelseek/internal/logger"
	"github.com/pixelseek/pixelseek/internal/platform/qdrant"
)

func main() {
	_ = godotenv.Load()

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := qdrant.ResolveConfigFromEnv()
	if err != nil {
		log.Fatal("Qdrant config invalid", "error", err)
	}
	store, err := qdrant.Connect(log, cfg)
	if err != nil {
		log.Fatal("Qdrant connect failed", "error", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := store.EnsureCollections(ctx); err != nil {
		log.Fatal("Ensure collections failed", "error", err)
	}
	log.Info("Collections ready",
		"asset", cfg.AssetCollection,
		"keyframe", cfg.KeyframeCollection,
		"color", cfg.ColorCollection,
		"dim", cfg.VectorDim,
	)
}
